package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"

	"github.com/mastercactapus/zprobe/api"
)

var (
	serialPort string
	baudRate   int
	httpAddr   string
	useStdio   bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serialPort, "port", "p", "", "serial port to serve the console on, e.g. /dev/ttyGS0")
	serveCmd.Flags().IntVar(&baudRate, "baud", 115200, "serial baud rate")
	serveCmd.Flags().StringVar(&httpAddr, "addr", ":9091", "address of the HTTP API, empty to disable")
	serveCmd.Flags().BoolVar(&useStdio, "stdio", false, "serve the console on stdin and stdout")
}

type stdio struct {
	io.Reader
	io.Writer
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the machine and serve its console",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sys, err := cfg.Build(log.StandardLogger())
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		go sys.Run(ctx)

		errs := make(chan error, 3)
		var consoles int
		if serialPort != "" {
			port, err := serial.OpenPort(&serial.Config{Name: serialPort, Baud: baudRate})
			if err != nil {
				return errors.Wrapf(err, "open %s", serialPort)
			}
			defer port.Close()
			log.WithField("port", serialPort).Info("serving console")
			consoles++
			go func() { errs <- errors.Wrap(sys.Console.Serve(ctx, port), "serial console") }()
		}
		if useStdio {
			consoles++
			go func() { errs <- errors.Wrap(sys.Console.Serve(ctx, stdio{os.Stdin, os.Stdout}), "stdio console") }()
		}

		if httpAddr != "" {
			a := api.New(sys.Console, log.WithField("component", "api"))
			srv := &http.Server{Addr: httpAddr, Handler: a}
			go func() {
				<-ctx.Done()
				// event streams stay open until closed
				a.Close()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()
			log.WithField("addr", httpAddr).Info("serving HTTP API")
			consoles++
			go func() {
				err := srv.ListenAndServe()
				if err == http.ErrServerClosed {
					err = nil
				}
				errs <- errors.Wrap(err, "http")
			}()
		}

		if consoles == 0 {
			return errors.New("nothing to serve, set --port, --stdio or --addr")
		}

		for i := 0; i < consoles; i++ {
			err := <-errs
			if err != nil && errors.Cause(err) != context.Canceled {
				return err
			}
			if ctx.Err() == nil {
				// a console reached EOF
				log.Info("console closed")
				cancel()
			}
		}
		return nil
	},
}
