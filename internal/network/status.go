package network

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
)

type ServiceStatus struct {
	Service   Service
	Running   bool
	StartedAt string
	Ports     string
}

// Status inspects the container of every service.
func (n *Network) Status(ctx context.Context) ([]ServiceStatus, error) {
	out := make([]ServiceStatus, 0, len(n.Services))
	for _, s := range n.Services {
		info, err := n.api.ContainerInspect(ctx, s.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", s.Name, err)
		}
		st := ServiceStatus{Service: s}
		if info.ContainerJSONBase != nil && info.State != nil {
			st.Running = info.State.Running
			st.StartedAt = info.State.StartedAt
		}
		if info.NetworkSettings != nil {
			var ports []string
			for port, bindings := range info.NetworkSettings.Ports {
				for _, b := range bindings {
					ports = append(ports, fmt.Sprintf("%s:%s", port, b.HostPort))
				}
			}
			slices.Sort(ports)
			st.Ports = strings.Join(ports, ",")
		}
		out = append(out, st)
	}
	return out, nil
}

// WriteStatusTable renders statuses as an aligned table.
func WriteStatusTable(w io.Writer, statuses []ServiceStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tKIND\tRUNNING\tSTARTED AT\tPORTS")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", st.Service.Name, st.Service.Kind, st.Running, st.StartedAt, st.Ports)
	}
	return tw.Flush()
}
