package mavlink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
)

// DefaultSerialBaud is used when a serial descriptor carries no baud rate,
// matching the usual telemetry-radio speed.
const DefaultSerialBaud = 57600

// ParseEndpoint converts a connection descriptor into a gomavlib endpoint.
//
// Supported forms:
//
//	udpin:<host>:<port>   listen for a source pushing UDP telemetry
//	udpout:<host>:<port>  connect out to a UDP source
//	tcp:<host>:<port>     connect out to a TCP source
//	<device>[:<baud>]     serial link, e.g. /dev/ttyUSB0:115200
//
// A descriptor that fits none of these is a configuration error and the
// process must not start.
func ParseEndpoint(descriptor string) (gomavlib.EndpointConf, error) {
	desc := strings.TrimSpace(descriptor)
	if desc == "" {
		return nil, fmt.Errorf("empty connection descriptor")
	}

	switch {
	case strings.HasPrefix(desc, "udpin:"):
		addr, err := hostPort(strings.TrimPrefix(desc, "udpin:"))
		if err != nil {
			return nil, fmt.Errorf("udpin descriptor %q: %w", descriptor, err)
		}
		return gomavlib.EndpointUDPServer{Address: addr}, nil

	case strings.HasPrefix(desc, "udpout:"):
		addr, err := hostPort(strings.TrimPrefix(desc, "udpout:"))
		if err != nil {
			return nil, fmt.Errorf("udpout descriptor %q: %w", descriptor, err)
		}
		return gomavlib.EndpointUDPClient{Address: addr}, nil

	case strings.HasPrefix(desc, "tcp:"):
		addr, err := hostPort(strings.TrimPrefix(desc, "tcp:"))
		if err != nil {
			return nil, fmt.Errorf("tcp descriptor %q: %w", descriptor, err)
		}
		return gomavlib.EndpointTCPClient{Address: addr}, nil

	case strings.Contains(desc, "://"):
		return nil, fmt.Errorf("unsupported connection scheme in %q", descriptor)
	}

	device, baud := desc, DefaultSerialBaud
	if idx := strings.LastIndex(desc, ":"); idx > 0 {
		parsed, err := strconv.Atoi(desc[idx+1:])
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid baud rate in serial descriptor %q", descriptor)
		}
		device, baud = desc[:idx], parsed
	}
	return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
}

func hostPort(s string) (string, error) {
	host, portStr, ok := strings.Cut(s, ":")
	if !ok || host == "" || portStr == "" {
		return "", fmt.Errorf("expected <host>:<port>, got %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %q", portStr)
	}
	return host + ":" + portStr, nil
}
