// SPDX-License-Identifier: GPL-3.0
// Copyright (C) 2026 Netacct Exporter Contributors

package containers

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// DockerLister lists running containers from the local Docker daemon.
type DockerLister struct {
	cli *client.Client
}

// NewDockerLister connects using the DOCKER_* environment.
func NewDockerLister() (*DockerLister, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerLister{cli: cli}, nil
}

func (d *DockerLister) Close() error {
	return d.cli.Close()
}

func (d *DockerLister) Containers(ctx context.Context) ([]Container, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("status", "running")

	list, err := d.cli.ContainerList(ctx, container.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]Container, 0, len(list))
	for _, ctr := range list {
		inspect, err := d.cli.ContainerInspect(ctx, ctr.ID)
		if err != nil {
			slog.Debug("container inspect failed", "id", ctr.ID, "err", err)
			continue
		}
		out = append(out, fromInspect(inspect))
	}
	return out, nil
}

func fromInspect(inspect types.ContainerJSON) Container {
	var c Container
	if inspect.ContainerJSONBase != nil {
		c.Name = strings.TrimPrefix(inspect.Name, "/")
	}
	if inspect.Config != nil {
		c.Labels = inspect.Config.Labels
	}
	if inspect.NetworkSettings == nil {
		return c
	}
	for _, ep := range inspect.NetworkSettings.Networks {
		if ep == nil {
			continue
		}
		for _, s := range []string{ep.IPAddress, ep.GlobalIPv6Address} {
			if a, err := netip.ParseAddr(s); err == nil {
				c.Addrs = append(c.Addrs, a)
			}
		}
	}
	return c
}
