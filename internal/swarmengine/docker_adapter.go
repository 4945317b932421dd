package swarmengine

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"swarmbender/pkg/log"
)

// DockerAPIAdapter talks to the Swarm manager's secret endpoints directly
// through the native Docker engine API client.
type DockerAPIAdapter struct {
	Client *client.Client
}

// NewDockerAPIAdapter builds an adapter from an already-configured client
// (typically client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())).
func NewDockerAPIAdapter(cli *client.Client) *DockerAPIAdapter {
	return &DockerAPIAdapter{Client: cli}
}

func (a *DockerAPIAdapter) ListNames(ctx context.Context) (map[string]bool, error) {
	secrets, err := a.Client.SecretList(ctx, swarm.SecretListOptions{})
	if err != nil {
		return nil, &EngineError{Op: "list-names", Cause: err}
	}
	names := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		names[s.Spec.Annotations.Name] = true
	}
	return names, nil
}

func (a *DockerAPIAdapter) ListDetailed(ctx context.Context) ([]SecretRecord, error) {
	secrets, err := a.Client.SecretList(ctx, swarm.SecretListOptions{})
	if err != nil {
		return nil, &EngineError{Op: "list-detailed", Cause: err}
	}
	out := make([]SecretRecord, 0, len(secrets))
	for _, s := range secrets {
		out = append(out, SecretRecord{
			Name:      s.Spec.Annotations.Name,
			CreatedAt: s.Meta.CreatedAt,
			Labels:    s.Spec.Annotations.Labels,
		})
	}
	return out, nil
}

func (a *DockerAPIAdapter) EnsureCreated(ctx context.Context, name string, value []byte, labels map[string]string) (bool, error) {
	spec := swarm.SecretSpec{
		Annotations: swarm.Annotations{
			Name:   name,
			Labels: labels,
		},
		Data: value,
	}
	_, err := a.Client.SecretCreate(ctx, spec)
	if err == nil {
		log.Info("created secret", "name", name)
		return true, nil
	}
	if isAlreadyExists(err) {
		log.Debug("secret already exists, treating as idempotent", "name", name)
		return false, nil
	}
	return false, &EngineError{Op: "create", Cause: err}
}

func (a *DockerAPIAdapter) Remove(ctx context.Context, name string) (bool, error) {
	secrets, err := a.Client.SecretList(ctx, swarm.SecretListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, &EngineError{Op: "remove", Cause: err}
	}
	// The name filter also matches other names that start with name.
	for _, s := range secrets {
		if s.Spec.Annotations.Name != name {
			continue
		}
		if err := a.Client.SecretRemove(ctx, s.ID); err != nil {
			return false, &EngineError{Op: "remove", Cause: err}
		}
		log.Info("removed secret", "name", name)
		return true, nil
	}
	return false, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
