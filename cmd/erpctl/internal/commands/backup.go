package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"erpcore/internal/backup"
	"erpcore/internal/model"
	"erpcore/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Export a tenant to an archive"`
	List    BackupListCmd    `cmd:"" help:"List the stored archives of a tenant"`
	Restore BackupRestoreCmd `cmd:"" help:"Replay an archive into a tenant"`
}

type BackupCreateCmd struct {
	Tenant string `help:"Company id to export." required:""`
	Out    string `help:"Directory to write the archive to. Ignored when backup storage is configured." default:"." type:"path"`
}

func (b *BackupCreateCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := parseTenant(b.Tenant)
	if err != nil {
		return err
	}
	ctx, a, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := zerolog.Ctx(ctx)

	res, err := a.Backups(progress{logger: log}).CreateBackup(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := a.Audit.Record(ctx, service.AuditEntry{
		CompanyID:  tenantID,
		Action:     model.ActionCreateBackup,
		EntityID:   res.Filename,
		EntityName: res.Filename,
		Details:    map[string]any{"size": res.Size, "counts": res.Counts, "source": "erpctl"},
	}); err != nil {
		log.Warn().Err(err).Msg("audit log not written")
	}

	if res.Path != "" {
		fmt.Printf("stored %s (%d bytes)\n", res.Path, res.Size)
		return nil
	}
	target := filepath.Join(b.Out, res.Filename)
	if err := os.WriteFile(target, res.Data, 0o600); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", target, res.Size)
	return nil
}

type BackupListCmd struct {
	Tenant string `help:"Company id." required:""`
}

func (b *BackupListCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := parseTenant(b.Tenant)
	if err != nil {
		return err
	}
	ctx, a, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Backups(nil).List(ctx, tenantID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tSIZE\tCREATED")
	for _, item := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\n", item.Filename, item.Size, item.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

type BackupRestoreCmd struct {
	Tenant string `help:"Company id to restore into. Must match the archive." required:""`
	File   string `help:"Archive on local disk." xor:"source" required:"" type:"existingfile"`
	Stored string `help:"Name of a stored archive." xor:"source" required:""`
}

func (b *BackupRestoreCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := parseTenant(b.Tenant)
	if err != nil {
		return err
	}
	ctx, a, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := zerolog.Ctx(ctx)
	backups := a.Backups(progress{logger: log})

	name := b.Stored
	if b.File != "" {
		name = filepath.Base(b.File)
		data, err := os.ReadFile(b.File)
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		err = backups.Restore(ctx, data, tenantID)
		b.record(ctx, a.Audit, tenantID, name, err)
		if err != nil {
			return err
		}
	} else {
		err := backups.RestoreFromStorage(ctx, b.Stored, tenantID)
		b.record(ctx, a.Audit, tenantID, name, err)
		if err != nil {
			return err
		}
	}

	fmt.Printf("restored %s into %s\n", name, tenantID)
	return nil
}

func (b *BackupRestoreCmd) record(ctx context.Context, audit service.AuditService, tenantID uuid.UUID, name string, restoreErr error) {
	entry := service.AuditEntry{
		CompanyID:  tenantID,
		Action:     model.ActionRestoreBackup,
		EntityID:   name,
		EntityName: name,
		Details:    map[string]any{"source": "erpctl"},
	}
	if errors.Is(restoreErr, backup.ErrOperationInProgress) {
		return
	}
	if restoreErr != nil {
		entry.Action = model.ActionRestoreBackupFailed
		entry.Details["error"] = restoreErr.Error()
	}
	if err := audit.Record(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("audit log not written")
	}
}
