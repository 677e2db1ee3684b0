package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"fruittrace/internal/blob"
	"fruittrace/internal/model"
	"fruittrace/internal/notify"
	"fruittrace/internal/repository"
	"fruittrace/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(e notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type harness struct {
	db           *gorm.DB
	tx           repository.TransactionManager
	approvalRepo repository.ApprovalRepository
	productRepo  repository.ProductRepository
	catalogRepo  repository.CatalogRepository
	auditRepo    repository.AuditRepository
	userRepo     repository.UserRepository
	store        *blob.Memory
	events       *recordingPublisher

	review  ReviewService
	intake  IntakeService
	ledger  ApprovalService
	public  PublicService
	catalog CatalogService
	users   UserService
	audits  AuditService
	admin   model.Actor
	staff   model.Actor
	farm    *model.Farm
	cert    *model.Certification
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		db:           db,
		tx:           repository.NewTransactionManager(db),
		approvalRepo: repository.NewApprovalRepository(db),
		productRepo:  repository.NewProductRepository(db),
		catalogRepo:  repository.NewCatalogRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
		userRepo:     repository.NewUserRepository(db),
		store:        blob.NewMemory(),
		events:       &recordingPublisher{},
	}
	h.wire()

	admin := testutil.CreateUser(t, db, "admin", model.RoleAdmin)
	staff := testutil.CreateUser(t, db, "staff", model.RoleStaff)
	h.admin = model.Actor{ID: admin.ID, Role: model.RoleAdmin}
	h.staff = model.Actor{ID: staff.ID, Role: model.RoleStaff}
	h.farm = testutil.CreateFarm(t, db, "Green Valley")
	h.cert = testutil.CreateCertification(t, db, "VietGAP")
	return h
}

// wire builds the services from the harness repositories, so a test can swap one first.
func (h *harness) wire() {
	h.review = NewReviewService(h.tx, h.approvalRepo, h.productRepo, h.auditRepo, h.events, nil)
	h.intake = NewIntakeService(h.tx, h.approvalRepo, h.catalogRepo, h.auditRepo, h.review, h.store, h.events, nil)
	h.ledger = NewApprovalService(h.approvalRepo, h.productRepo)
	h.public = NewPublicService(h.productRepo, nil)
	h.catalog = NewCatalogService(h.tx, h.catalogRepo, h.productRepo, h.auditRepo)
	h.users = NewUserService(h.tx, h.userRepo, h.auditRepo, []byte("test-secret"), time.Hour, WithHashCost(bcrypt.MinCost))
	h.audits = NewAuditService(h.auditRepo)
}

func (h *harness) createFields(name string) map[string]string {
	return map[string]string{
		"name":        name,
		"price":       "12.50",
		"description": "sweet and seedless",
		"farmId":      h.farm.ID.String(),
		"harvestDate": "2024-06-01",
	}
}

// submitPendingCreate files a staff create request and returns its id.
func (h *harness) submitPendingCreate(t *testing.T, name string) uuid.UUID {
	t.Helper()
	res, err := h.intake.Submit(context.Background(), h.staff, Submission{
		Kind:   model.RequestCreate,
		Fields: h.createFields(name),
	})
	require.NoError(t, err)
	require.Equal(t, SubmitPending, res.Status)
	return res.RequestID
}

// seedProduct creates an in-stock product directly through the admin path.
func (h *harness) seedProduct(t *testing.T, name string) uuid.UUID {
	t.Helper()
	res, err := h.intake.Submit(context.Background(), h.admin, Submission{
		Kind:   model.RequestCreate,
		Fields: h.createFields(name),
	})
	require.NoError(t, err)
	require.NotNil(t, res.ProductID)
	return *res.ProductID
}

func (h *harness) request(t *testing.T, id uuid.UUID) *model.ApprovalRequest {
	t.Helper()
	req, err := h.approvalRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (h *harness) product(t *testing.T, id uuid.UUID) *model.Product {
	t.Helper()
	p, err := h.productRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func upload(name, body string) Upload {
	return Upload{Filename: name, ContentType: "image/jpeg", Body: strings.NewReader(body)}
}

func strPtr(s string) *string { return &s }
