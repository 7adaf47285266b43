package grbl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mastercactapus/zprobe/coord"
)

// ProbeResult is a parsed [PRB:x,y,z:ok] report.
type ProbeResult struct {
	coord.Point
	Valid bool
}

// Status is a parsed <State|MPos:x,y,z|WCO:x,y,z> report.
type Status struct {
	State string
	MPos  coord.Point
	WCO   coord.Point
}

func (s Status) String() string {
	return fmt.Sprintf("<%s|MPos:%s|WCO:%s>", s.State, formatCoords(s.MPos), formatCoords(s.WCO))
}

func formatCoords(p coord.Point) string {
	return fmt.Sprintf("%1.3f,%1.3f,%1.3f", p.X, p.Y, p.Z)
}

// ParseCoords parses an x,y,z triple.
func ParseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.Errorf("expected 3 coordinates, got %d", len(parts))
	}
	for axis, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, errors.Wrapf(err, "parse %c", coord.AxisName(axis))
		}
		p = p.SetAxis(axis, v)
	}
	return p, nil
}

func ParseProbe(data string) (*ProbeResult, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if parts[0] != "PRB" {
		return nil, errors.New("unknown push message: " + data)
	}
	if len(parts) != 3 {
		return nil, errors.New("malformed probe report: " + data)
	}

	var res ProbeResult
	var err error
	res.Valid = parts[2] == "1"
	res.Point, err = ParseCoords(parts[1])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func ParseStatus(data string) (*Status, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return nil, errors.New("not a status report: " + data)
	}
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")

	var stat Status
	stat.State = parts[0]
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = ParseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = ParseCoords(sParts[1])
		}
		if err != nil {
			return nil, errors.Wrap(err, sParts[0])
		}
	}
	return &stat, nil
}
