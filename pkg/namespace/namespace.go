// Package namespace implements the Namespace Service: CRUD over
// containerd namespaces, exposed by the HTTP API's namespace-management
// routes.
package namespace

import (
	"context"
	"errors"
	"fmt"

	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/runtime"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

// Error sentinels: AlreadyExists | NotFound | Internal.
var (
	ErrAlreadyExists = errors.New("namespace already exists")
	ErrNotFound      = errors.New("namespace not found")
	ErrInternal      = errors.New("namespace service internal error")
)

// Service wraps a runtime client to provide namespace CRUD.
type Service struct {
	client *runtime.Client
}

// New builds a Service over an existing runtime client.
func New(client *runtime.Client) *Service {
	return &Service{client: client}
}

// Exists reports whether namespace is currently registered in the
// Runtime Daemon. containerd's namespace store has no direct Get, so
// existence is checked by scanning List.
func (s *Service) Exists(ctx context.Context, namespace string) (bool, error) {
	names, err := s.client.Namespaces().List(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: list namespaces: %v", ErrInternal, err)
	}
	for _, n := range names {
		if n == namespace {
			return true, nil
		}
	}
	return false, nil
}

// Create registers a new namespace with the given labels.
func (s *Service) Create(ctx context.Context, namespace string, labels map[string]string) error {
	exists, err := s.Exists(ctx, namespace)
	if err != nil {
		return err
	}
	if exists {
		log.WithNamespace(namespace).Info().Msg("namespace already exists")
		return fmt.Errorf("%w: %s", ErrAlreadyExists, namespace)
	}

	if err := s.client.Namespaces().Create(ctx, namespace, labels); err != nil {
		return fmt.Errorf("%w: create namespace %s: %v", ErrInternal, namespace, err)
	}
	log.WithNamespace(namespace).Info().Msg("namespace created")
	return nil
}

// Get returns the wire representation of a single namespace and its
// labels.
func (s *Service) Get(ctx context.Context, namespace string) (types.Namespace, error) {
	exists, err := s.Exists(ctx, namespace)
	if err != nil {
		return types.Namespace{}, err
	}
	if !exists {
		return types.Namespace{}, fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}

	labels, err := s.client.Namespaces().Labels(ctx, namespace)
	if err != nil {
		return types.Namespace{}, fmt.Errorf("%w: labels for %s: %v", ErrInternal, namespace, err)
	}
	return types.Namespace{Name: namespace, Labels: labels}, nil
}

// List returns every registered namespace with its labels.
func (s *Service) List(ctx context.Context) ([]types.Namespace, error) {
	names, err := s.client.Namespaces().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list namespaces: %v", ErrInternal, err)
	}

	out := make([]types.Namespace, 0, len(names))
	for _, n := range names {
		labels, err := s.client.Namespaces().Labels(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("%w: labels for %s: %v", ErrInternal, n, err)
		}
		out = append(out, types.Namespace{Name: n, Labels: labels})
	}
	return out, nil
}

// Delete removes a namespace. The namespace must be empty of containers,
// tasks and snapshots — enforced by the Runtime Daemon itself, surfaced
// here as ErrInternal.
func (s *Service) Delete(ctx context.Context, namespace string) error {
	exists, err := s.Exists(ctx, namespace)
	if err != nil {
		return err
	}
	if !exists {
		log.WithNamespace(namespace).Info().Msg("namespace not found")
		return fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}

	if err := s.client.Namespaces().Delete(ctx, namespace); err != nil {
		return fmt.Errorf("%w: delete namespace %s: %v", ErrInternal, namespace, err)
	}
	log.WithNamespace(namespace).Info().Msg("namespace deleted")
	return nil
}

// Update replaces a namespace's label set wholesale (a full re-PUT, not
// a per-key merge).
func (s *Service) Update(ctx context.Context, namespace string, labels map[string]string) error {
	exists, err := s.Exists(ctx, namespace)
	if err != nil {
		return err
	}
	if !exists {
		log.WithNamespace(namespace).Info().Msg("namespace not found")
		return fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}

	current, err := s.client.Namespaces().Labels(ctx, namespace)
	if err != nil {
		return fmt.Errorf("%w: labels for %s: %v", ErrInternal, namespace, err)
	}
	for k := range current {
		if _, keep := labels[k]; !keep {
			if err := s.client.Namespaces().SetLabel(ctx, namespace, k, ""); err != nil {
				return fmt.Errorf("%w: clear label %s on %s: %v", ErrInternal, k, namespace, err)
			}
		}
	}
	for k, v := range labels {
		if err := s.client.Namespaces().SetLabel(ctx, namespace, k, v); err != nil {
			return fmt.Errorf("%w: set label %s on %s: %v", ErrInternal, k, namespace, err)
		}
	}

	log.WithNamespace(namespace).Info().Msg("namespace updated")
	return nil
}
