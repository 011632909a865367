package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// RunningServer describes a UI server found by ProbeRunning.
type RunningServer struct {
	URL              string
	EngineVersion    string
	Platform         string
	ExtensionVersion string
}

// ProbeRunning asks localhost:port whether a UI server is answering there.
// It returns nil without error when nothing is listening, or when whatever
// is listening is not a UI server.
func ProbeRunning(ctx context.Context, port int) (*RunningServer, error) {
	url := "http://localhost:" + strconv.Itoa(port)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/info", nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	ext := resp.Header.Get("X-DuckDB-UI-Extension-Version")
	if resp.StatusCode != http.StatusOK || ext == "" {
		return nil, nil
	}
	return &RunningServer{
		URL:              url,
		EngineVersion:    resp.Header.Get("X-DuckDB-Version"),
		Platform:         resp.Header.Get("X-DuckDB-Platform"),
		ExtensionVersion: ext,
	}, nil
}

// Process identifies the owner of a listening socket.
type Process struct {
	PID  int32
	Name string
}

// PortOwner finds the process listening on a local TCP port. It returns nil
// when no listener is found.
func PortOwner(ctx context.Context, port int) (*Process, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, errors.Annotate(err, "listing sockets")
	}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid == 0 {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, c.Pid)
		if err != nil {
			return &Process{PID: c.Pid}, nil
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			return &Process{PID: c.Pid}, nil
		}
		return &Process{PID: c.Pid, Name: name}, nil
	}
	return nil, nil
}
