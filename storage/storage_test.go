package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"board-api/domain"
)

// fakeTable serves its pages in order and records the filters it was
// listed with.
type fakeTable struct {
	mu      sync.Mutex
	pages   [][]string
	filters []string
	listErr error

	updates   [][]byte
	updateErr error
}

func (f *fakeTable) NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.mu.Lock()
	if options != nil && options.Filter != nil {
		f.filters = append(f.filters, *options.Filter)
	}
	f.mu.Unlock()
	page := 0
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool {
			return page < len(f.pages)
		},
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			if f.listErr != nil {
				return aztables.ListEntitiesResponse{}, f.listErr
			}
			var resp aztables.ListEntitiesResponse
			if page < len(f.pages) {
				for _, raw := range f.pages[page] {
					resp.Entities = append(resp.Entities, []byte(raw))
				}
			}
			page++
			return resp, nil
		},
	})
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, entity)
	return aztables.UpdateEntityResponse{}, f.updateErr
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestFetchColumnsOrdersByPosition(t *testing.T) {
	ft := &fakeTable{pages: [][]string{
		{`{"PartitionKey":"p1","RowKey":"done","Label":"Done","Position":2}`},
		{
			`{"PartitionKey":"p1","RowKey":"todo","Label":"To Do","Position":0}`,
			`{"PartitionKey":"p1","RowKey":"doing","Label":"In Progress","Position":1}`,
		},
	}}
	s := &Storage{columnTable: ft}
	cols, err := s.FetchColumns(context.Background(), "p1")
	if err != nil {
		t.Fatalf("fetch columns: %v", err)
	}
	if len(cols) != 3 || cols[0].ID != "todo" || cols[1].ID != "doing" || cols[2].ID != "done" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
	if cols[0].Label != "To Do" || cols[0].Issues == nil {
		t.Fatalf("unexpected column: %+v", cols[0])
	}
	if ft.filters[0] != "PartitionKey eq 'p1'" {
		t.Fatalf("unexpected filter: %s", ft.filters[0])
	}
}

func TestFetchActiveSprintPicksLatestAndLoadsIssues(t *testing.T) {
	sprints := &fakeTable{pages: [][]string{{
		`{"PartitionKey":"p1","RowKey":"s1","Name":"Old","StartDate":"2026-09-01T00:00:00Z","DueDate":"2026-09-14T00:00:00Z","Active":true}`,
		`{"PartitionKey":"p1","RowKey":"s2","Name":"Current","StartDate":"2026-10-01T00:00:00Z","DueDate":"2026-10-15T00:00:00Z","Active":true}`,
	}}}
	issues := &fakeTable{pages: [][]string{{
		`{"PartitionKey":"p1","RowKey":"12","Title":"Crash","Type":"BUG","Priority":"HIGH","EstimatedPoints":8,"ColumnId":"todo","AssignedToId":"7","SprintId":"s2"}`,
		`{"PartitionKey":"p1","RowKey":"13","Title":"Docs","Type":"whatever","Priority":"","EstimatedPoints":0,"ColumnId":"","AssignedToId":"","SprintId":"s2"}`,
	}}}
	s := &Storage{sprintTable: sprints, issueTable: issues}

	sp, err := s.FetchActiveSprint(context.Background(), "p1")
	if err != nil {
		t.Fatalf("fetch sprint: %v", err)
	}
	if sp == nil || sp.ID != "s2" || sp.Name != "Current" {
		t.Fatalf("unexpected sprint: %+v", sp)
	}
	if !sp.DueDate.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date: %v", sp.DueDate)
	}
	if len(sp.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(sp.Issues))
	}
	first := sp.Issues[0]
	if first.ID != 12 || first.Type != domain.TypeBug || first.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected issue: %+v", first)
	}
	if first.ColumnID == nil || *first.ColumnID != "todo" || first.AssignedToID == nil || *first.AssignedToID != 7 {
		t.Fatalf("unexpected references: %+v", first)
	}
	second := sp.Issues[1]
	if second.Type != domain.TypeUncategorized || second.Priority != domain.PriorityUnknown {
		t.Fatalf("expected fallbacks for unknown enums, got %+v", second)
	}
	if second.ColumnID != nil || second.AssignedToID != nil {
		t.Fatalf("expected nil references, got %+v", second)
	}
	if got := issues.filters[0]; got != "PartitionKey eq 'p1' and SprintId eq 's2'" {
		t.Fatalf("unexpected issue filter: %s", got)
	}
}

func TestFetchActiveSprintNone(t *testing.T) {
	s := &Storage{sprintTable: &fakeTable{}, issueTable: &fakeTable{}}
	sp, err := s.FetchActiveSprint(context.Background(), "p1")
	if err != nil || sp != nil {
		t.Fatalf("expected no sprint, got %+v %v", sp, err)
	}
}

func TestFetchListError(t *testing.T) {
	boom := errors.New("boom")
	s := &Storage{columnTable: &fakeTable{pages: [][]string{{}}, listErr: boom}}
	if _, err := s.FetchColumns(context.Background(), "p1"); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestFetchWorkspaceMembers(t *testing.T) {
	ft := &fakeTable{pages: [][]string{{
		`{"PartitionKey":"w1","RowKey":"7","UserId":"70","Name":"Ada","Email":"ada@example.com"}`,
	}}}
	s := &Storage{memberTable: ft}
	members, err := s.FetchWorkspaceMembers(context.Background(), "w1")
	if err != nil {
		t.Fatalf("fetch members: %v", err)
	}
	if len(members) != 1 || members[0].ID != 7 || members[0].User.ID != 70 || members[0].User.Name != "Ada" {
		t.Fatalf("unexpected members: %+v", members)
	}

	bad := &Storage{memberTable: &fakeTable{pages: [][]string{{`{"PartitionKey":"w1","RowKey":"x","UserId":"1"}`}}}}
	if _, err := bad.FetchWorkspaceMembers(context.Background(), "w1"); err == nil {
		t.Fatalf("expected error for malformed member id")
	}
}

func TestPersistIssueColumnMerges(t *testing.T) {
	ft := &fakeTable{}
	s := &Storage{issueTable: ft}
	if err := s.PersistIssueColumn(context.Background(), "p1", 12, "done"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(ft.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(ft.updates))
	}
	var got map[string]any
	if err := sonic.Unmarshal(ft.updates[0], &got); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if got["PartitionKey"] != "p1" || got["RowKey"] != "12" || got["ColumnId"] != "done" {
		t.Fatalf("unexpected update payload: %v", got)
	}
}

func TestPersistIssueColumnNotFound(t *testing.T) {
	ft := &fakeTable{updateErr: &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}}
	s := &Storage{issueTable: ft}
	err := s.PersistIssueColumn(context.Background(), "p1", 12, "done")
	if !errors.Is(err, domain.ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}

	boom := errors.New("boom")
	ft.updateErr = boom
	if err := s.PersistIssueColumn(context.Background(), "p1", 12, "done"); !errors.Is(err, boom) {
		t.Fatalf("expected passthrough error, got %v", err)
	}
}

func TestPublishIssueMoved(t *testing.T) {
	fq := &fakeQueue{}
	s := &Storage{eventQueue: fq}
	ev := domain.IssueMovedEvent{ID: "e1", Type: domain.IssueMoved, ProjectID: "p1", IssueID: 12, FromColumnID: "todo", ToColumnID: "done"}
	if err := s.PublishIssueMoved(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fq.messages) != 1 || !strings.Contains(fq.messages[0], `"toColumnId":"done"`) {
		t.Fatalf("unexpected messages: %v", fq.messages)
	}

	if err := (&Storage{}).PublishIssueMoved(context.Background(), ev); err != nil {
		t.Fatalf("expected no-op without queue, got %v", err)
	}
}

func TestODataStringEscapesQuotes(t *testing.T) {
	if got := odataString("o'brien"); got != "'o''brien'" {
		t.Fatalf("unexpected escape: %s", got)
	}
}
