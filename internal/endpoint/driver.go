// Package endpoint implements the orchestration loop each peer process
// runs: protocol version negotiation, schema exchange, and dispatch of
// the remaining session commands to a backend adapter (C8).
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"kitchensync/internal/adapter"
	"kitchensync/internal/wire"
)

// ErrProtocolVersion means the peer proposed a version below
// wire.EarliestProtocolVersion; a version above wire.LatestProtocolVersion
// is negotiated down to it instead.
var ErrProtocolVersion = errors.New("endpoint: unsupported protocol version")

// ErrUnsupportedCommand means a command arrived that this build's
// negotiated version does not recognize.
var ErrUnsupportedCommand = errors.New("endpoint: unsupported command")

// Driver runs one endpoint's side of a Kitchen Sync session: it reads
// commands off a wire.Stream and dispatches them to an adapter.Adapter,
// exactly as described in §4.8.
type Driver struct {
	stream  *wire.Stream
	backend adapter.Adapter
	log     *zap.Logger

	version int
}

// New constructs a Driver bound to one adapter and one framed stream.
func New(stream *wire.Stream, backend adapter.Adapter, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{stream: stream, backend: backend, log: log}
}

// Run executes the command loop until "quit", EOF, or a fatal error.
// EOF while awaiting the next command is treated as a clean shutdown
// (the peer hung up between messages, not mid-frame); any other error
// surfaces to the caller, which is responsible for mapping it to a
// process exit code per §6.
func (d *Driver) Run(ctx context.Context) error {
	for {
		cmd, err := d.stream.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("endpoint: read command: %w", err)
		}

		d.log.Debug("dispatch command", zap.String("command", cmd.Name), zap.Int("args", len(cmd.Args)))

		if cmd.Name == wire.CommandQuit {
			return nil
		}

		if err := d.dispatch(ctx, cmd); err != nil {
			return err
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, cmd wire.Command) error {
	switch cmd.Name {
	case wire.CommandProtocol:
		return d.handleProtocol(cmd)
	case wire.CommandSchema:
		return d.handleSchema(ctx)
	case wire.CommandExportSnapshot:
		return d.handleExportSnapshot(ctx)
	case wire.CommandImportSnapshot:
		return d.handleImportSnapshot(ctx, cmd)
	case wire.CommandUnholdSnapshot:
		if err := d.backend.UnholdSnapshot(ctx); err != nil {
			return err
		}
		return d.stream.WriteReply()
	case wire.CommandWithoutSnapshot:
		if err := d.backend.StartReadTransaction(ctx); err != nil {
			return err
		}
		return d.stream.WriteReply()
	case wire.CommandTargetBlockSize, wire.CommandTargetMinimumBlockSize:
		// Acknowledged but not acted on here: block sizing feeds the
		// range-hashing sync algorithm, which is this protocol's
		// declared external collaborator (§1).
		return d.stream.WriteReply()
	case wire.CommandIdle:
		if d.version < 8 {
			return fmt.Errorf("%w: idle requires protocol version >= 8, negotiated %d", ErrUnsupportedCommand, d.version)
		}
		return d.stream.WriteReply()
	case wire.CommandRange, wire.CommandHash, wire.CommandRows:
		// Delegated to the range-hashing synchronization subsystem,
		// explicitly out of scope (§1): acknowledge so the session
		// stays framed correctly, the sync layer owns the real reply.
		return d.stream.WriteReply()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Name)
	}
}

func (d *Driver) handleProtocol(cmd wire.Command) error {
	arg, err := cmd.Arg(0)
	if err != nil {
		return err
	}
	peerVersion, err := arg.Int64()
	if err != nil {
		return err
	}

	negotiated := int(peerVersion)
	if negotiated > wire.LatestProtocolVersion {
		negotiated = wire.LatestProtocolVersion
	}
	if negotiated < wire.EarliestProtocolVersion {
		d.log.Error("protocol version rejected", zap.Int64("peer_version", peerVersion))
		return fmt.Errorf("%w: peer proposed %d, earliest supported is %d", ErrProtocolVersion, peerVersion, wire.EarliestProtocolVersion)
	}

	d.version = negotiated
	d.log.Info("protocol negotiated", zap.Int("version", negotiated))
	return d.stream.WriteReply(negotiated)
}

func (d *Driver) handleSchema(ctx context.Context) error {
	db, err := d.backend.DatabaseSchema(ctx)
	if err != nil {
		return err
	}
	d.log.Info("schema introspected", zap.Int("tables", len(db.Tables)))
	return d.stream.WriteSchema(db)
}

func (d *Driver) handleExportSnapshot(ctx context.Context) error {
	token, err := d.backend.ExportSnapshot(ctx)
	if err != nil {
		return err
	}
	return d.stream.WriteReply(token)
}

func (d *Driver) handleImportSnapshot(ctx context.Context, cmd wire.Command) error {
	arg, err := cmd.Arg(0)
	if err != nil {
		return err
	}
	token := arg.String()
	if err := d.backend.ImportSnapshot(ctx, token); err != nil {
		return err
	}
	return d.stream.WriteReply()
}
