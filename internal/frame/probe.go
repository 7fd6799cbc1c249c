package frame

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ProbeStatus is the outcome of an RTSP reachability probe, reused by
// the frame source's pre-flight check and by the video-source config
// ingress validation path.
type ProbeStatus string

const (
	ProbeValid        ProbeStatus = "valid"
	ProbeUnauthorized ProbeStatus = "unauthorized"
	ProbeTimeout      ProbeStatus = "timeout"
	ProbeInvalid      ProbeStatus = "invalid"
)

// ProbeResult carries the probe outcome and round-trip time.
type ProbeResult struct {
	Status ProbeStatus
	RTTMS  int
}

// ProbeRTSP performs a raw-socket RTSP OPTIONS handshake against
// rawURL, classifying 200 OK as reachable, 401 as reachable-but-
// unauthorized, and anything else as invalid. It does not attempt to
// decode media; it is a cheap reachability pre-check before spending
// resources opening a full Decoder.
func ProbeRTSP(rawURL string, timeout time.Duration) (ProbeResult, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ProbeResult{Status: ProbeInvalid}, fmt.Errorf("frame: parse rtsp url: %w", err)
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":554"
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		if strings.Contains(err.Error(), "timeout") {
			return ProbeResult{Status: ProbeTimeout}, Transient(err)
		}
		return ProbeResult{Status: ProbeInvalid}, Transient(err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	req := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: aisecurityvision\r\n\r\n", rawURL)
	if _, err := conn.Write([]byte(req)); err != nil {
		return ProbeResult{Status: ProbeInvalid}, Transient(err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return ProbeResult{Status: ProbeInvalid}, Transient(err)
	}
	rtt := int(time.Since(start).Milliseconds())
	resp := string(buf[:n])

	switch {
	case strings.HasPrefix(resp, "RTSP/1.0 200"):
		return ProbeResult{Status: ProbeValid, RTTMS: rtt}, nil
	case strings.Contains(resp, "401"):
		return ProbeResult{Status: ProbeUnauthorized, RTTMS: rtt}, AuthFailure(fmt.Errorf("frame: rtsp 401 unauthorized"))
	default:
		return ProbeResult{Status: ProbeInvalid, RTTMS: rtt}, fmt.Errorf("frame: unexpected rtsp response")
	}
}
