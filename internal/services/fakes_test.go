package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/notify"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

var errNotSupported = errors.New("not supported by the in-memory store")

// memState is the whole in-memory database. Transactions snapshot it on Begin and put the
// snapshot back on Rollback.
type memState struct {
	nextID        int64
	now           time.Time
	users         map[int64]models.User
	resets        map[int64]models.PasswordReset
	items         map[int64]models.Item
	conversations map[int64]models.Conversation
	messages      map[int64]models.Message
	bookings      map[int64]models.Booking
	payments      map[int64]models.Payment
	purchases     map[int64]models.Purchase
	requests      map[int64]models.CreditRequest
	balances      map[string]models.CreditBalance
}

func newMemState(now time.Time) *memState {
	return &memState{
		now:           now,
		users:         map[int64]models.User{},
		resets:        map[int64]models.PasswordReset{},
		items:         map[int64]models.Item{},
		conversations: map[int64]models.Conversation{},
		messages:      map[int64]models.Message{},
		bookings:      map[int64]models.Booking{},
		payments:      map[int64]models.Payment{},
		purchases:     map[int64]models.Purchase{},
		requests:      map[int64]models.CreditRequest{},
		balances:      map[string]models.CreditBalance{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() memState {
	return memState{
		nextID:        s.nextID,
		now:           s.now,
		users:         copyMap(s.users),
		resets:        copyMap(s.resets),
		items:         copyMap(s.items),
		conversations: copyMap(s.conversations),
		messages:      copyMap(s.messages),
		bookings:      copyMap(s.bookings),
		payments:      copyMap(s.payments),
		purchases:     copyMap(s.purchases),
		requests:      copyMap(s.requests),
		balances:      copyMap(s.balances),
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type fakeDB struct {
	mu        sync.Mutex
	state     *memState
	fail      map[string]error
	begins    int
	commits   int
	rollbacks int
}

func newFakeDB(now time.Time) *fakeDB {
	return &fakeDB{state: newMemState(now), fail: map[string]error{}}
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotSupported
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail["begin"]; err != nil {
		return nil, err
	}
	d.begins++
	return &fakeTx{db: d, snapshot: d.state.clone()}, nil
}

func (d *fakeDB) failing(op string) error {
	return d.fail[op]
}

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSupported }

// fakeTx embeds the interface for the methods it does not need.
type fakeTx struct {
	pgx.Tx
	db       *fakeDB
	snapshot memState
	done     bool
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	*t.db.state = t.snapshot
	t.db.rollbacks++
	return nil
}

func memStore(db *fakeDB) store {
	return store{
		db: db,
		build: func(repository.DBTX) repos {
			return repos{
				users:         memUsers{db},
				resets:        memResets{db},
				items:         memItems{db},
				conversations: memConversations{db},
				messages:      memMessages{db},
				bookings:      memBookings{db},
				payments:      memPayments{db},
				purchases:     memPurchases{db},
				credits:       memCredits{db},
			}
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// recordingMailer hands every sent email to a channel so tests can wait for the async send.
type recordingMailer struct {
	sent chan notify.Email
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan notify.Email, 16)}
}

func (m *recordingMailer) Send(_ context.Context, email notify.Email) error {
	m.sent <- email
	return nil
}

func (m *recordingMailer) next(timeout time.Duration) (notify.Email, bool) {
	select {
	case email := <-m.sent:
		return email, true
	case <-time.After(timeout):
		return notify.Email{}, false
	}
}

type memUsers struct{ db *fakeDB }

func (r memUsers) CreateUser(_ context.Context, user *models.User) error {
	s := r.db.state
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = s.id()
	user.CreatedAt = s.now
	user.UpdatedAt = s.now
	s.users[user.ID] = *user
	return nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range r.db.state.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := r.db.state.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r memUsers) ListByRole(_ context.Context, role string) ([]models.User, error) {
	users := []models.User{}
	for _, user := range r.db.state.users {
		if user.Role == role {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r memUsers) BumpTokenVersion(_ context.Context, id int64) (int, error) {
	user, ok := r.db.state.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	user.TokenVersion++
	r.db.state.users[id] = user
	return user.TokenVersion, nil
}

func (r memUsers) GetTokenVersion(_ context.Context, id int64) (int, error) {
	user, ok := r.db.state.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return user.TokenVersion, nil
}

func (r memUsers) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	user, ok := r.db.state.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.TokenVersion++
	r.db.state.users[id] = user
	return nil
}

type memResets struct{ db *fakeDB }

func (r memResets) Create(_ context.Context, userID int64, otpHash string, expiresAt time.Time) (*models.PasswordReset, error) {
	s := r.db.state
	reset := models.PasswordReset{ID: s.id(), UserID: userID, OTPHash: otpHash, ExpiresAt: expiresAt, CreatedAt: s.now}
	s.resets[reset.ID] = reset
	return &reset, nil
}

func (r memResets) GetLatestActive(_ context.Context, userID int64, now time.Time) (*models.PasswordReset, error) {
	var latest *models.PasswordReset
	for _, reset := range r.db.state.resets {
		if reset.UserID != userID || reset.UsedAt != nil || !reset.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || reset.ID > latest.ID {
			candidate := reset
			latest = &candidate
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (r memResets) MarkUsed(_ context.Context, id int64) error {
	reset, ok := r.db.state.resets[id]
	if !ok || reset.UsedAt != nil {
		return pgx.ErrNoRows
	}
	now := r.db.state.now
	reset.UsedAt = &now
	r.db.state.resets[id] = reset
	return nil
}

type memItems struct{ db *fakeDB }

func (r memItems) Create(_ context.Context, input repository.CreateItemInput) (*models.Item, error) {
	s := r.db.state
	item := models.Item{
		ID:           s.id(),
		ItemType:     input.ItemType,
		Title:        input.Title,
		Description:  input.Description,
		Price:        input.Price,
		Currency:     input.Currency,
		DurationText: input.DurationText,
		SessionAt:    input.SessionAt,
		IsActive:     true,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
	s.items[item.ID] = item
	return &item, nil
}

func (r memItems) GetByID(_ context.Context, id int64) (*models.Item, error) {
	item, ok := r.db.state.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &item, nil
}

func (r memItems) List(_ context.Context, filter repository.ItemListFilter) ([]models.Item, error) {
	items := []models.Item{}
	for _, item := range r.db.state.items {
		if filter.ItemType != "" && item.ItemType != filter.ItemType {
			continue
		}
		if filter.ActiveOnly && !item.IsActive {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r memItems) ListByIDs(_ context.Context, ids []int64) (map[int64]models.Item, error) {
	items := map[int64]models.Item{}
	for _, id := range ids {
		if item, ok := r.db.state.items[id]; ok {
			items[id] = item
		}
	}
	return items, nil
}

type memConversations struct{ db *fakeDB }

func sameItem(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r memConversations) CreateOrGet(_ context.Context, userID int64, itemID *int64, itemType *string) (*models.Conversation, error) {
	s := r.db.state
	for _, conversation := range s.conversations {
		if conversation.UserID == userID && sameItem(conversation.ItemID, itemID) {
			return &conversation, nil
		}
	}
	conversation := models.Conversation{ID: s.id(), UserID: userID, ItemID: itemID, ItemType: itemType, CreatedAt: s.now}
	s.conversations[conversation.ID] = conversation
	return &conversation, nil
}

func (r memConversations) GetByID(_ context.Context, id int64) (*models.Conversation, error) {
	conversation, ok := r.db.state.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &conversation, nil
}

func (r memConversations) ListForParticipant(_ context.Context, viewerID int64, includeAll bool) ([]models.ConversationSummary, error) {
	summaries := []models.ConversationSummary{}
	for _, conversation := range r.db.state.conversations {
		if includeAll || conversation.UserID == viewerID {
			summaries = append(summaries, models.ConversationSummary{Conversation: conversation})
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (r memConversations) Touch(_ context.Context, id int64, at time.Time) error {
	conversation, ok := r.db.state.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.LastMessageAt = &at
	r.db.state.conversations[id] = conversation
	return nil
}

type memMessages struct{ db *fakeDB }

func (r memMessages) Create(_ context.Context, input repository.CreateMessageInput) (*models.Message, bool, error) {
	if err := r.db.failing("messages.Create"); err != nil {
		return nil, false, err
	}
	s := r.db.state
	if input.ClientKey != nil {
		for _, message := range s.messages {
			if message.ConversationID == input.ConversationID && message.ClientKey != nil && *message.ClientKey == *input.ClientKey {
				return &message, false, nil
			}
		}
	}
	message := models.Message{
		ID:             s.id(),
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		SenderRole:     input.SenderRole,
		Body:           input.Body,
		Kind:           input.Kind,
		CourseItemID:   input.CourseItemID,
		ClientKey:      input.ClientKey,
		CreatedAt:      s.now,
		ReadBy:         []int64{},
	}
	s.messages[message.ID] = message
	return &message, true, nil
}

func (r memMessages) sorted(match func(models.Message) bool) []models.Message {
	messages := []models.Message{}
	for _, message := range r.db.state.messages {
		if match(message) {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages
}

func (r memMessages) ListByConversation(_ context.Context, conversationID int64) ([]models.Message, error) {
	return r.sorted(func(m models.Message) bool { return m.ConversationID == conversationID }), nil
}

func (r memMessages) MarkRead(_ context.Context, conversationID int64, readerID int64, ids []int64) ([]models.Message, error) {
	if ids != nil && len(ids) == 0 {
		return []models.Message{}, nil
	}
	wanted := map[int64]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	candidates := r.sorted(func(m models.Message) bool {
		return m.ConversationID == conversationID && m.SenderID != readerID && m.ReadAt == nil &&
			(ids == nil || wanted[m.ID])
	})

	now := r.db.state.now
	for i := range candidates {
		candidates[i].ReadAt = &now
		candidates[i].ReadBy = append(append([]int64{}, candidates[i].ReadBy...), readerID)
		r.db.state.messages[candidates[i].ID] = candidates[i]
	}
	return candidates, nil
}

func (r memMessages) ListLegacyTagged(_ context.Context, afterID int64, limit int) ([]models.Message, error) {
	messages := r.sorted(func(m models.Message) bool {
		return m.ID > afterID && m.CourseItemID == nil && strings.HasPrefix(strings.TrimSpace(m.Body), "[course:")
	})
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r memMessages) SetCourseContext(_ context.Context, id int64, courseItemID int64, body string) error {
	message, ok := r.db.state.messages[id]
	if !ok {
		return pgx.ErrNoRows
	}
	message.CourseItemID = &courseItemID
	message.Body = body
	r.db.state.messages[id] = message
	return nil
}

type memBookings struct{ db *fakeDB }

func (r memBookings) Create(_ context.Context, input repository.CreateBookingInput) (*models.Booking, error) {
	s := r.db.state
	booking := models.Booking{
		ID:              s.id(),
		UserID:          input.UserID,
		ItemID:          input.ItemID,
		ItemType:        input.ItemType,
		Status:          models.BookingStatusPending,
		Amount:          input.Amount,
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: input.DurationMinutes,
		CreatedAt:       s.now,
		UpdatedAt:       s.now,
	}
	s.bookings[booking.ID] = booking
	return &booking, nil
}

func (r memBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	booking, ok := r.db.state.bookings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &booking, nil
}

func (r memBookings) GetByIDForUpdate(ctx context.Context, id int64) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r memBookings) filter(match func(models.Booking) bool) []models.Booking {
	bookings := []models.Booking{}
	for _, booking := range r.db.state.bookings {
		if match(booking) {
			bookings = append(bookings, booking)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return bookings
}

func (r memBookings) List(_ context.Context, filter repository.BookingListFilter) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.UserID == filter.UserID && (filter.Status == "" || b.Status == filter.Status)
	}), nil
}

func (r memBookings) ListBookedWithSchedule(context.Context) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingStatusBooked && b.ScheduledAt != nil
	}), nil
}

func (r memBookings) ListBookedSessionLinked(context.Context) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingStatusBooked && b.ScheduledAt == nil && b.ItemType == models.ItemTypeSession
	}), nil
}

func (r memBookings) UpdateStatusIfCurrent(_ context.Context, id int64, current string, next string) (*models.Booking, error) {
	if err := r.db.failing("bookings.UpdateStatusIfCurrent"); err != nil {
		return nil, err
	}
	booking, ok := r.db.state.bookings[id]
	if !ok || booking.Status != current {
		return nil, pgx.ErrNoRows
	}
	booking.Status = next
	booking.UpdatedAt = r.db.state.now
	if next == models.BookingStatusCancelled {
		at := r.db.state.now
		booking.CancelledAt = &at
	}
	r.db.state.bookings[id] = booking
	return &booking, nil
}

type memPayments struct{ db *fakeDB }

func (r memPayments) Create(_ context.Context, input repository.CreatePaymentInput) (*models.Payment, error) {
	s := r.db.state
	payment := models.Payment{
		ID:             s.id(),
		UserID:         input.UserID,
		BookingID:      input.BookingID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Status:         models.PaymentStatusPending,
		GatewayOrderID: input.GatewayOrderID,
		ServiceType:    input.ServiceType,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	s.payments[payment.ID] = payment
	return &payment, nil
}

func (r memPayments) GetByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	for _, payment := range r.db.state.payments {
		if payment.GatewayOrderID == orderID {
			return &payment, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memPayments) GetLatestByBookingAndStatus(_ context.Context, bookingID int64, status string) (*models.Payment, error) {
	var latest *models.Payment
	for _, payment := range r.db.state.payments {
		if payment.BookingID == bookingID && payment.Status == status && (latest == nil || payment.ID > latest.ID) {
			candidate := payment
			latest = &candidate
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (r memPayments) GetLatestByBookingAndStatusForUpdate(ctx context.Context, bookingID int64, status string) (*models.Payment, error) {
	return r.GetLatestByBookingAndStatus(ctx, bookingID, status)
}

func (r memPayments) ListByBookingIDs(_ context.Context, bookingIDs []int64) (map[int64]models.Payment, error) {
	wanted := map[int64]bool{}
	for _, id := range bookingIDs {
		wanted[id] = true
	}
	payments := map[int64]models.Payment{}
	for _, payment := range r.db.state.payments {
		if existing, ok := payments[payment.BookingID]; wanted[payment.BookingID] && (!ok || payment.ID > existing.ID) {
			payments[payment.BookingID] = payment
		}
	}
	return payments, nil
}

func (r memPayments) UpdateStatusIfCurrent(_ context.Context, id int64, current string, next string) (*models.Payment, error) {
	payment, ok := r.db.state.payments[id]
	if !ok || payment.Status != current {
		return nil, pgx.ErrNoRows
	}
	payment.Status = next
	r.db.state.payments[id] = payment
	return &payment, nil
}

func (r memPayments) MarkCompleted(_ context.Context, id int64, transactionID string) (*models.Payment, error) {
	payment, ok := r.db.state.payments[id]
	if !ok || (payment.Status != models.PaymentStatusPending && payment.Status != models.PaymentStatusFailed) {
		return nil, pgx.ErrNoRows
	}
	for _, other := range r.db.state.payments {
		if other.ID != id && other.BookingID == payment.BookingID && other.Status == models.PaymentStatusCompleted {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "uq_payments_completed_booking"}
		}
	}
	payment.Status = models.PaymentStatusCompleted
	payment.TransactionID = &transactionID
	r.db.state.payments[id] = payment
	return &payment, nil
}

func (r memPayments) FailPendingForBooking(_ context.Context, bookingID int64) (int64, error) {
	var changed int64
	for id, payment := range r.db.state.payments {
		if payment.BookingID == bookingID && payment.Status == models.PaymentStatusPending {
			payment.Status = models.PaymentStatusFailed
			r.db.state.payments[id] = payment
			changed++
		}
	}
	return changed, nil
}

func (r memPayments) MarkRefunded(_ context.Context, id int64, refundID string) (*models.Payment, error) {
	if err := r.db.failing("payments.MarkRefunded"); err != nil {
		return nil, err
	}
	payment, ok := r.db.state.payments[id]
	if !ok || payment.Status != models.PaymentStatusCompleted {
		return nil, pgx.ErrNoRows
	}
	payment.Status = models.PaymentStatusRefunded
	payment.RefundID = &refundID
	annotated := *payment.TransactionID + "|refund:" + refundID
	payment.TransactionID = &annotated
	r.db.state.payments[id] = payment
	return &payment, nil
}

type memPurchases struct{ db *fakeDB }

func (r memPurchases) CreateIfAbsent(ctx context.Context, input repository.CreatePurchaseInput) (*models.Purchase, bool, error) {
	if existing, err := r.GetByBookingID(ctx, input.BookingID); err == nil {
		return existing, false, nil
	}
	s := r.db.state
	purchase := models.Purchase{
		ID:               s.id(),
		UserID:           input.UserID,
		BookingID:        input.BookingID,
		ItemID:           input.ItemID,
		ItemType:         input.ItemType,
		Amount:           input.Amount,
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		Status:           "completed",
		CreatedAt:        s.now,
	}
	s.purchases[purchase.ID] = purchase
	return &purchase, true, nil
}

func (r memPurchases) GetByBookingID(_ context.Context, bookingID int64) (*models.Purchase, error) {
	for _, purchase := range r.db.state.purchases {
		if purchase.BookingID == bookingID {
			return &purchase, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memCredits struct{ db *fakeDB }

func (r memCredits) CreateRequest(_ context.Context, input repository.CreateCreditRequestInput) (*models.CreditRequest, error) {
	s := r.db.state
	request := models.CreditRequest{
		ID:          s.id(),
		UserID:      input.UserID,
		Amount:      input.Amount,
		ServiceType: input.ServiceType,
		Reason:      input.Reason,
		Status:      models.CreditStatusPending,
		CreatedAt:   s.now,
	}
	s.requests[request.ID] = request
	return &request, nil
}

func (r memCredits) GetRequest(_ context.Context, id int64) (*models.CreditRequest, error) {
	request, ok := r.db.state.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &request, nil
}

func (r memCredits) ListRequests(_ context.Context, filter repository.CreditRequestFilter) ([]models.CreditRequest, error) {
	requests := []models.CreditRequest{}
	for _, request := range r.db.state.requests {
		if filter.UserID != nil && request.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].ID < requests[j].ID })
	return requests, nil
}

func (r memCredits) Decide(_ context.Context, id int64, status string, reviewerID int64, notes *string) (*models.CreditRequest, error) {
	request, ok := r.db.state.requests[id]
	if !ok || request.Status != models.CreditStatusPending {
		return nil, pgx.ErrNoRows
	}
	now := r.db.state.now
	request.Status = status
	request.ReviewerID = &reviewerID
	request.ReviewerNotes = notes
	request.ReviewedAt = &now
	r.db.state.requests[id] = request
	return &request, nil
}

func (r memCredits) AddToBalance(_ context.Context, userID int64, serviceType string, delta int64) (*models.CreditBalance, error) {
	if err := r.db.failing("credits.AddToBalance"); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d|%s", userID, serviceType)
	balance, ok := r.db.state.balances[key]
	if !ok {
		balance = models.CreditBalance{UserID: userID, ServiceType: serviceType}
	}
	balance.Balance += delta
	balance.UpdatedAt = r.db.state.now
	r.db.state.balances[key] = balance
	return &balance, nil
}

func (r memCredits) ListBalances(_ context.Context, userID int64) ([]models.CreditBalance, error) {
	balances := []models.CreditBalance{}
	for _, balance := range r.db.state.balances {
		if balance.UserID == userID {
			balances = append(balances, balance)
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].ServiceType < balances[j].ServiceType })
	return balances, nil
}
