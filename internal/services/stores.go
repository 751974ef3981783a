package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/database"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type userStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListByRole(ctx context.Context, role string) ([]models.User, error)
	BumpTokenVersion(ctx context.Context, id int64) (int, error)
	GetTokenVersion(ctx context.Context, id int64) (int, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type passwordResetStore interface {
	Create(ctx context.Context, userID int64, otpHash string, expiresAt time.Time) (*models.PasswordReset, error)
	GetLatestActive(ctx context.Context, userID int64, now time.Time) (*models.PasswordReset, error)
	MarkUsed(ctx context.Context, id int64) error
}

type itemStore interface {
	Create(ctx context.Context, input repository.CreateItemInput) (*models.Item, error)
	GetByID(ctx context.Context, id int64) (*models.Item, error)
	List(ctx context.Context, filter repository.ItemListFilter) ([]models.Item, error)
	ListByIDs(ctx context.Context, ids []int64) (map[int64]models.Item, error)
}

type conversationStore interface {
	CreateOrGet(ctx context.Context, userID int64, itemID *int64, itemType *string) (*models.Conversation, error)
	GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error)
	ListForParticipant(ctx context.Context, viewerID int64, includeAll bool) ([]models.ConversationSummary, error)
	Touch(ctx context.Context, conversationID int64, at time.Time) error
}

type messageStore interface {
	Create(ctx context.Context, input repository.CreateMessageInput) (*models.Message, bool, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID int64, readerID int64, messageIDs []int64) ([]models.Message, error)
	ListLegacyTagged(ctx context.Context, afterID int64, limit int) ([]models.Message, error)
	SetCourseContext(ctx context.Context, messageID int64, courseItemID int64, body string) error
}

type bookingStore interface {
	Create(ctx context.Context, input repository.CreateBookingInput) (*models.Booking, error)
	GetByID(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error)
	List(ctx context.Context, filter repository.BookingListFilter) ([]models.Booking, error)
	ListBookedWithSchedule(ctx context.Context) ([]models.Booking, error)
	ListBookedSessionLinked(ctx context.Context) ([]models.Booking, error)
	UpdateStatusIfCurrent(ctx context.Context, bookingID int64, currentStatus string, nextStatus string) (*models.Booking, error)
}

type paymentStore interface {
	Create(ctx context.Context, input repository.CreatePaymentInput) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetLatestByBookingAndStatus(ctx context.Context, bookingID int64, status string) (*models.Payment, error)
	GetLatestByBookingAndStatusForUpdate(ctx context.Context, bookingID int64, status string) (*models.Payment, error)
	ListByBookingIDs(ctx context.Context, bookingIDs []int64) (map[int64]models.Payment, error)
	UpdateStatusIfCurrent(ctx context.Context, paymentID int64, currentStatus string, nextStatus string) (*models.Payment, error)
	MarkCompleted(ctx context.Context, paymentID int64, transactionID string) (*models.Payment, error)
	FailPendingForBooking(ctx context.Context, bookingID int64) (int64, error)
	MarkRefunded(ctx context.Context, paymentID int64, refundID string) (*models.Payment, error)
}

type purchaseStore interface {
	CreateIfAbsent(ctx context.Context, input repository.CreatePurchaseInput) (*models.Purchase, bool, error)
	GetByBookingID(ctx context.Context, bookingID int64) (*models.Purchase, error)
}

type creditStore interface {
	CreateRequest(ctx context.Context, input repository.CreateCreditRequestInput) (*models.CreditRequest, error)
	GetRequest(ctx context.Context, requestID int64) (*models.CreditRequest, error)
	ListRequests(ctx context.Context, filter repository.CreditRequestFilter) ([]models.CreditRequest, error)
	Decide(ctx context.Context, requestID int64, status string, reviewerID int64, notes *string) (*models.CreditRequest, error)
	AddToBalance(ctx context.Context, userID int64, serviceType string, delta int64) (*models.CreditBalance, error)
	ListBalances(ctx context.Context, userID int64) ([]models.CreditBalance, error)
}

// repos is one set of repositories bound to either the pool or a transaction.
type repos struct {
	users         userStore
	resets        passwordResetStore
	items         itemStore
	conversations conversationStore
	messages      messageStore
	bookings      bookingStore
	payments      paymentStore
	purchases     purchaseStore
	credits       creditStore
}

func postgresRepos(db repository.DBTX) repos {
	return repos{
		users:         repository.NewUserRepository(db),
		resets:        repository.NewPasswordResetRepository(db),
		items:         repository.NewItemRepository(db),
		conversations: repository.NewConversationRepository(db),
		messages:      repository.NewMessageRepository(db),
		bookings:      repository.NewBookingRepository(db),
		payments:      repository.NewPaymentRepository(db),
		purchases:     repository.NewPurchaseRepository(db),
		credits:       repository.NewCreditRepository(db),
	}
}

type store struct {
	db    DB
	build func(repository.DBTX) repos
}

func newStore(db DB) store {
	return store{db: db, build: postgresRepos}
}

func (s store) read() repos {
	return s.build(s.db)
}

func (s store) tx(ctx context.Context, fn func(r repos) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(s.build(tx))
	})
}
