package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldops/regsync/internal/env"
	"github.com/fieldops/regsync/pkg/connectivity"
	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/fieldops/regsync/pkg/datastore/bitable"
	"github.com/fieldops/regsync/pkg/datastore/postgres"
	"github.com/fieldops/regsync/pkg/forms"
	"github.com/fieldops/regsync/pkg/notify"
	"github.com/fieldops/regsync/pkg/queue"
	"github.com/fieldops/regsync/pkg/syncer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	backendBitable  = "bitable"
	backendPostgres = "postgres"
	backendMemory   = "memory"
)

// app holds the wired pipeline for one command invocation.
type app struct {
	queue         *queue.Store
	store         datastore.Store
	registrations *datastore.RegistrationRepo
	online        connectivity.Checker
	syncer        *syncer.Syncer

	closeStore func()
}

func (a *app) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
	if err := a.queue.Close(); err != nil {
		log.Warn().Err(err).Msg("close queue failed")
	}
}

func openApp(ctx context.Context) (*app, error) {
	queuePath := rootQueueDB
	if strings.TrimSpace(queuePath) == "" {
		resolved, err := queue.ResolvePath()
		if err != nil {
			return nil, err
		}
		queuePath = resolved
	}
	q := queue.New(queuePath)
	if err := q.Open(ctx); err != nil {
		log.Warn().Err(err).Str("path", queuePath).Msg("local queue unavailable, queue operations will no-op")
	}

	store, closeStore, err := openStore(ctx, firstNonEmpty(rootBackend, env.String(env.DatastoreBackend, backendBitable)))
	if err != nil {
		_ = q.Close()
		return nil, err
	}

	var online connectivity.Checker = connectivity.NewProbeFromEnv(store)
	if rootOffline {
		online = connectivity.Static(false)
	}

	sinks := notify.Multi{notify.NewStoreSink(datastore.NewNotificationRepo(store, datastore.NotificationFieldsFromEnv()))}
	if hook := notify.NewWebhookSinkFromEnv(); hook != nil {
		sinks = append(sinks, hook)
	}

	registrations := datastore.NewRegistrationRepo(store, datastore.RegistrationFieldsFromEnv())
	s := syncer.New(syncer.Deps{
		Queue:         q,
		Registrations: registrations,
		Agents:        datastore.NewAgentRepo(store, datastore.AgentFieldsFromEnv()),
		Forms:         forms.NewAdapterFromEnv(),
		Notifier:      sinks,
		Connectivity:  online,
	}, syncer.ConfigFromEnv())

	log.Debug().Str("queue", queuePath).Msg("pipeline ready")
	return &app{queue: q, store: store, registrations: registrations, online: online, syncer: s, closeStore: closeStore}, nil
}

func openStore(ctx context.Context, backend string) (datastore.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case backendBitable:
		store, err := bitable.NewFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case backendPostgres:
		url := env.String(env.DatabaseURL, "")
		if url == "" {
			return nil, nil, fmt.Errorf("%s must be provided for the postgres backend", env.DatabaseURL)
		}
		store, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case backendMemory:
		log.Warn().Msg("using in-memory datastore, remote records are discarded on exit")
		return datastore.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, errors.Errorf("unknown datastore backend %q", backend)
	}
}

func requireAgent() (string, error) {
	agentID := strings.TrimSpace(rootAgentID)
	if agentID == "" {
		return "", errors.New("--agent must be provided")
	}
	return agentID, nil
}
