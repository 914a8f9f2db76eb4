// Copyright The Authly Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command authlyd is a long-running Authly node: it owns the node's
// replicated-SQLite handle, its crypto envelope and CA identity, the
// cluster broadcast bus, and the Authly Connect tunnel listener a
// prospective mandate dials into.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/authly-sh/authly/pkg/cluster"
	"github.com/authly-sh/authly/pkg/config"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
	"github.com/authly-sh/authly/pkg/mandate"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar()

	if err := run(log); err != nil {
		log.Fatalw("authlyd exited", "error", err)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg, err := config.LoadNode()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	advertiseAddr, err := config.ResolveAdvertiseAddr(cfg)
	if err != nil {
		return err
	}
	log.Infow("resolved cluster advertise address", "addr", advertiseAddr)

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if err := directory.Migrate(ctx, store); err != nil {
		return err
	}

	backend, err := secretBackend(cfg)
	if err != nil {
		return err
	}

	master, err := crypto.LoadOrCreateMaster(ctx, store, backend)
	if err != nil {
		return err
	}
	defer master.Destroy()

	deks, err := crypto.LoadDecryptedDeks(ctx, store, master)
	if err != nil {
		return err
	}

	authlyEID := id.New(id.KindService)
	snapshot, err := instance.Bootstrap(ctx, store, deks, authlyEID, cfg.RotationPeriod)
	if err != nil {
		return err
	}
	go instance.RunRotationLoop(ctx, store, deks, snapshot, cfg.RotationPeriod)

	engines := cluster.NewEngineCache()
	bus := cluster.NewBus(store, deks, snapshot, engines, log)
	go func() {
		if err := bus.Run(ctx); err != nil {
			log.Errorw("cluster bus stopped", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	desc := mandate.NewServiceDesc(tunnelHandler(log, store, snapshot))
	grpcServer.RegisterService(&desc, nil)

	log.Infow("authlyd listening", "grpc_addr", cfg.GRPCListenAddr)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()
	return grpcServer.Serve(lis)
}

func secretBackend(cfg config.Node) (crypto.Backend, error) {
	switch crypto.BackendKind(cfg.SecretBackend) {
	case crypto.BackendVault:
		return crypto.NewVaultBackend(crypto.VaultConfig{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
			CACert:  cfg.VaultCACert,
			Timeout: cfg.VaultTimeout,
		})
	case crypto.BackendKMS:
		return crypto.NewKMSBackend(cfg.KMSURI), nil
	default:
		return crypto.NewLocalBackend(), nil
	}
}
