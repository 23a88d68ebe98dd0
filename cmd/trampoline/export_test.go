package trampoline

import (
	"context"

	"github.com/manifest-network/trampoline/internal/docker"
)

// SetDockerAPI makes every command use api and returns a restore func.
func SetDockerAPI(api docker.API) func() {
	old := newDockerAPI
	newDockerAPI = func() (docker.API, error) { return api, nil }
	return func() { newDockerAPI = old }
}

// SetDockerRunner replaces the docker CLI runner and returns a restore func.
func SetDockerRunner(fn func(context.Context, *docker.Command) error) func() {
	old := runDocker
	runDocker = fn
	return func() { runDocker = old }
}
