package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"board-api/domain"
)

type entityLister interface {
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type issueTable interface {
	entityLister
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
}

type eventQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Config names the tables and queue backing the board.
type Config struct {
	ConnectionString string
	ColumnsTable     string
	IssuesTable      string
	SprintsTable     string
	MembersTable     string
	EventsQueue      string
}

// Storage reads boards from Azure Tables and publishes board events to an
// Azure Queue.
type Storage struct {
	columnTable entityLister
	issueTable  issueTable
	sprintTable entityLister
	memberTable entityLister
	eventQueue  eventQueue
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// New creates a Storage from the given configuration.
func New(cfg Config) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		columnTable: svc.NewClient(cfg.ColumnsTable),
		issueTable:  svc.NewClient(cfg.IssuesTable),
		sprintTable: svc.NewClient(cfg.SprintsTable),
		memberTable: svc.NewClient(cfg.MembersTable),
	}
	if cfg.EventsQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 30,
					StatusCodes:   retryStatusCodes,
				},
			},
		}
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.ConnectionString, cfg.EventsQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		s.eventQueue = q
	}
	return s, nil
}

type columnEntity struct {
	aztables.Entity
	Label    string `json:"Label"`
	Position int    `json:"Position"`
}

type issueEntity struct {
	aztables.Entity
	Title           string  `json:"Title"`
	Description     *string `json:"Description,omitempty"`
	Type            string  `json:"Type"`
	Priority        string  `json:"Priority"`
	EstimatedPoints float64 `json:"EstimatedPoints"`
	ColumnID        string  `json:"ColumnId"`
	AssignedToID    string  `json:"AssignedToId"`
	IssueCount      int     `json:"IssueCount"`
	SprintID        string  `json:"SprintId"`
}

type sprintEntity struct {
	aztables.Entity
	Name      string    `json:"Name"`
	StartDate time.Time `json:"StartDate"`
	DueDate   time.Time `json:"DueDate"`
	Active    bool      `json:"Active"`
}

type memberEntity struct {
	aztables.Entity
	UserID int64  `json:"UserId,string"`
	Name   string `json:"Name"`
	Email  string `json:"Email"`
}

type issueColumnUpdate struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ColumnID     string `json:"ColumnId"`
}

// FetchColumns returns the project's columns ordered by position.
func (s *Storage) FetchColumns(ctx context.Context, projectID string) ([]domain.Column, error) {
	var ents []columnEntity
	if err := listEntities(ctx, s.columnTable, partitionFilter(projectID), &ents); err != nil {
		return nil, err
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Position < ents[j].Position })
	cols := make([]domain.Column, 0, len(ents))
	for _, e := range ents {
		cols = append(cols, domain.Column{ID: domain.ColumnID(e.RowKey), Label: e.Label, Issues: []domain.Issue{}})
	}
	return cols, nil
}

// FetchActiveSprint returns the project's active sprint with its issues, or
// nil when no sprint is active. When several sprints are flagged active the
// most recently started one wins.
func (s *Storage) FetchActiveSprint(ctx context.Context, projectID string) (*domain.Sprint, error) {
	var sprints []sprintEntity
	filter := partitionFilter(projectID) + " and Active eq true"
	if err := listEntities(ctx, s.sprintTable, filter, &sprints); err != nil {
		return nil, err
	}
	if len(sprints) == 0 {
		return nil, nil
	}
	active := sprints[0]
	for _, sp := range sprints[1:] {
		if sp.StartDate.After(active.StartDate) {
			active = sp
		}
	}

	var ents []issueEntity
	filter = partitionFilter(projectID) + " and SprintId eq " + odataString(active.RowKey)
	if err := listEntities(ctx, s.issueTable, filter, &ents); err != nil {
		return nil, err
	}
	issues := make([]domain.Issue, 0, len(ents))
	for _, e := range ents {
		is, err := e.toIssue()
		if err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	return &domain.Sprint{
		ID:        active.RowKey,
		Name:      active.Name,
		StartDate: active.StartDate,
		DueDate:   active.DueDate,
		Issues:    issues,
	}, nil
}

// FetchWorkspaceMembers returns the active members of a workspace.
func (s *Storage) FetchWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	var ents []memberEntity
	if err := listEntities(ctx, s.memberTable, partitionFilter(workspaceID), &ents); err != nil {
		return nil, err
	}
	members := make([]domain.WorkspaceMember, 0, len(ents))
	for _, e := range ents {
		id, err := strconv.ParseInt(e.RowKey, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", e.RowKey, err)
		}
		members = append(members, domain.WorkspaceMember{
			ID:   domain.MemberID(id),
			User: domain.User{ID: e.UserID, Name: e.Name, Email: e.Email},
		})
	}
	return members, nil
}

// PersistIssueColumn merges the new column into the issue entity. The write
// is unconditional so repeating it is harmless.
func (s *Storage) PersistIssueColumn(ctx context.Context, projectID string, issueID domain.IssueID, columnID domain.ColumnID) error {
	payload, err := sonic.Marshal(issueColumnUpdate{
		PartitionKey: projectID,
		RowKey:       strconv.FormatInt(int64(issueID), 10),
		ColumnID:     string(columnID),
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.issueTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %d", domain.ErrIssueNotFound, issueID)
		}
		return err
	}
	return nil
}

// PublishIssueMoved enqueues the event for downstream consumers. It is a
// no-op when no events queue is configured.
func (s *Storage) PublishIssueMoved(ctx context.Context, ev domain.IssueMovedEvent) error {
	if s.eventQueue == nil {
		return nil
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func (e issueEntity) toIssue() (domain.Issue, error) {
	id, err := strconv.ParseInt(e.RowKey, 10, 64)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("issue %q: %w", e.RowKey, err)
	}
	is := domain.Issue{
		ID:              domain.IssueID(id),
		Title:           e.Title,
		Description:     e.Description,
		Type:            domain.ParseIssueType(e.Type),
		Priority:        domain.ParsePriority(e.Priority),
		EstimatedPoints: e.EstimatedPoints,
		IssueCount:      e.IssueCount,
	}
	if e.ColumnID != "" {
		col := domain.ColumnID(e.ColumnID)
		is.ColumnID = &col
	}
	if e.AssignedToID != "" {
		// A malformed assignee is treated as unassigned rather than failing
		// the whole board.
		if m, err := strconv.ParseInt(e.AssignedToID, 10, 64); err == nil {
			member := domain.MemberID(m)
			is.AssignedToID = &member
		}
	}
	return is, nil
}

func listEntities[T any](ctx context.Context, table entityLister, filter string, out *[]T) error {
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			var ent T
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return err
			}
			*out = append(*out, ent)
		}
	}
	return nil
}

func partitionFilter(key string) string {
	return "PartitionKey eq " + odataString(key)
}

func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
