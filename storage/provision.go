package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateQueueResponse, error)
}

type entityUpserter interface {
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// DefaultColumns are the columns a new project board starts with.
var DefaultColumns = []struct{ ID, Label string }{
	{"todo", "To Do"},
	{"in-progress", "In Progress"},
	{"done", "Done"},
}

// Provision creates every table and the events queue named in cfg. Existing
// resources are left untouched.
func Provision(ctx context.Context, cfg Config) error {
	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return err
	}
	for _, name := range []string{cfg.ColumnsTable, cfg.IssuesTable, cfg.SprintsTable, cfg.MembersTable} {
		if name == "" {
			continue
		}
		if err := createTable(ctx, svc.NewClient(name)); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		log.WithField("table", name).Info("table ready")
	}
	if cfg.EventsQueue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.ConnectionString, cfg.EventsQueue, nil)
		if err != nil {
			return err
		}
		if err := createQueue(ctx, q); err != nil {
			return fmt.Errorf("queue %s: %w", cfg.EventsQueue, err)
		}
		log.WithField("queue", cfg.EventsQueue).Info("queue ready")
	}
	return nil
}

// SeedColumns upserts the default columns for a project.
func SeedColumns(ctx context.Context, cfg Config, projectID string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return err
	}
	return seedColumns(ctx, svc.NewClient(cfg.ColumnsTable), projectID)
}

func createTable(ctx context.Context, t tableCreator) error {
	_, err := t.CreateTable(ctx, nil)
	var respErr *azcore.ResponseError
	if err != nil && !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueue(ctx context.Context, q queueCreator) error {
	_, err := q.Create(ctx, nil)
	var respErr *azcore.ResponseError
	if err != nil && !(errors.As(err, &respErr) && respErr.ErrorCode == queueAlreadyExists) {
		return err
	}
	return nil
}

func seedColumns(ctx context.Context, t entityUpserter, projectID string) error {
	for i, c := range DefaultColumns {
		ent := columnEntity{
			Entity:   aztables.Entity{PartitionKey: projectID, RowKey: c.ID},
			Label:    c.Label,
			Position: i,
		}
		data, err := sonic.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := t.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
			return fmt.Errorf("column %s: %w", c.ID, err)
		}
	}
	return nil
}
