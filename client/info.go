package client

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nspyre-org/nspyre-sub001/frame"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

// ListDatasets opens a one-shot Info connection (spec §4.2) and
// returns the dataset names currently known to the server at
// addr:port.
func ListDatasets(addr string, port int) ([]string, error) {
	target := fmt.Sprintf("%s:%d", addr, port)
	conn, err := net.DialTimeout("tcp", target, proto.NegotiationTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", target, err)
	}
	fc := frame.New(conn)
	defer fc.Close()

	deadline := time.Now().Add(proto.NegotiationTimeout)
	if err := proto.SendRole(fc, proto.TagInfo, 0, deadline); err != nil {
		return nil, fmt.Errorf("client: info negotiation with %s: %w", target, err)
	}
	payload, _, err := fc.RecvFrame(time.Now().Add(proto.NegotiationTimeout))
	if err != nil {
		return nil, fmt.Errorf("client: info reply from %s: %w", target, err)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return strings.Split(string(payload), ","), nil
}
