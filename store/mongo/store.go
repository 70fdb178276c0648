// Package mongo implements store.Store on MongoDB. Atomic units run as
// multi-document transactions, so the deployment must be a replica set or
// sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	creditsstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/txlog"
)

// Collection name constants.
const (
	colAccounts     = "credit_accounts"
	colReservations = "credit_reservations"
	colAllocations  = "credit_allocations"
	colPackages     = "credit_packages"
	colPurchases    = "credit_purchases"
	colTransactions = "credit_transactions"
)

// compile-time interface check
var (
	_ creditsstore.Store = (*Store)(nil)
	_ creditsstore.Tx    = (*conn)(nil)
)

// Store implements store.Store using the official MongoDB driver.
type Store struct {
	*conn
	client *mongo.Client
}

// New creates a store on database name of an connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{conn: &conn{db: client.Database(database)}, client: client}
}

// Open connects to uri and verifies the deployment is reachable.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: connect: %w", err)
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Client returns the underlying client for direct access.
func (s *Store) Client() *mongo.Client { return s.client }

// Atomic implements store.Store. Account documents are upserted and touched
// in ascending id order inside a session transaction; a concurrent unit
// touching the same account aborts with a write conflict, reported as
// errs.ErrConflict.
func (s *Store) Atomic(ctx context.Context, accountIDs []string, fn func(ctx context.Context, tx creditsstore.Tx) error) error {
	order, err := creditsstore.LockOrder(accountIDs)
	if err != nil {
		return err
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("credits/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("credits/mongo: start transaction: %w", err)
	}
	sctx := mongo.NewSessionContext(ctx, sess)

	if err := s.run(sctx, order, fn); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return translate(err)
	}
	if err := sess.CommitTransaction(sctx); err != nil {
		return fmt.Errorf("credits/mongo: commit: %w", translate(err))
	}
	return nil
}

func (s *Store) run(ctx context.Context, order []string, fn func(ctx context.Context, tx creditsstore.Tx) error) error {
	for _, accountID := range order {
		if err := s.lockAccount(ctx, accountID); err != nil {
			return err
		}
	}
	return fn(ctx, s.conn)
}

// Migrate creates the collections and their indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if err := s.db.CreateCollection(ctx, col); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("credits/mongo: create collection %s: %w", col, err)
		}
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("credits/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// conn runs every store method. Inside Atomic the context carries the
// session, so the same methods join the open transaction.
type conn struct {
	db *mongo.Database
}

func (c *conn) col(name string) *mongo.Collection { return c.db.Collection(name) }

// ==================== Account Store ====================

// lockAccount creates the account if missing and writes to it, which makes
// the transaction own the document until it commits or aborts.
func (c *conn) lockAccount(ctx context.Context, accountID string) error {
	zero := decimalZero()
	_, err := c.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{
			"$setOnInsert": bson.M{
				"current_balance":       zero,
				"reserved_balance":      zero,
				"total_purchased":       zero,
				"total_consumed":        zero,
				"allocated_to_children": zero,
				"allocated_from_parent": zero,
				"version":               int64(0),
				"created_at":            time.Time{},
				"updated_at":            time.Time{},
			},
			"$inc": bson.M{"lock_seq": 1},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: lock account %s: %w", accountID, translate(err))
	}
	return nil
}

func (c *conn) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	var m accountModel
	err := c.col(colAccounts).FindOne(ctx, bson.M{"_id": accountID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", translate(err))
	}
	return fromAccountModel(&m)
}

func (c *conn) UpdateAccount(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return fmt.Errorf("credits/mongo: update account: %w", err)
	}
	m.Version = a.Version + 1
	res, err := c.col(colAccounts).ReplaceOne(ctx, bson.M{"_id": a.AccountID, "version": a.Version}, m)
	if err != nil {
		return fmt.Errorf("credits/mongo: update account: %w", translate(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: account %s version %d", errs.ErrConflict, a.AccountID, a.Version)
	}
	a.Version++
	return nil
}

func (c *conn) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	if err := c.find(ctx, colAccounts, bson.M{}, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}
	return convert(models, fromAccountModel)
}

// ==================== Reservation Store ====================

func (c *conn) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	m, err := toReservationModel(r)
	if err != nil {
		return fmt.Errorf("credits/mongo: create reservation: %w", err)
	}
	if _, err := c.col(colReservations).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("credits/mongo: create reservation %s: %w", r.ID, translate(err))
	}
	return nil
}

func (c *conn) GetReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	var m reservationModel
	err := c.col(colReservations).FindOne(ctx, bson.M{"_id": reservationID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrReservationNotFound, reservationID)
		}
		return nil, fmt.Errorf("credits/mongo: get reservation: %w", translate(err))
	}
	return fromReservationModel(&m)
}

func (c *conn) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	m, err := toReservationModel(r)
	if err != nil {
		return fmt.Errorf("credits/mongo: update reservation: %w", err)
	}
	return c.replace(ctx, colReservations, m.ID, m, fmt.Errorf("%w: %s", errs.ErrReservationNotFound, r.ID))
}

func (c *conn) ListReservations(ctx context.Context, accountID string, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	filter := bson.M{"account_id": accountID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	var models []reservationModel
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	if err := c.find(ctx, colReservations, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list reservations: %w", err)
	}
	return convert(models, fromReservationModel)
}

func (c *conn) ListDueReservations(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	filter := bson.M{
		"status":     string(reservation.StatusReserved),
		"expires_at": bson.M{"$lt": now},
	}
	var models []reservationModel
	sort := bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}}
	if err := c.find(ctx, colReservations, filter, sort, limit, 0, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list due reservations: %w", err)
	}
	return convert(models, fromReservationModel)
}

// ==================== Allocation Store ====================

func (c *conn) CreateAllocation(ctx context.Context, a *allocation.Allocation) error {
	m, err := toAllocationModel(a)
	if err != nil {
		return fmt.Errorf("credits/mongo: create allocation: %w", err)
	}
	if _, err := c.col(colAllocations).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("credits/mongo: create allocation %s: %w", a.ID, translate(err))
	}
	return nil
}

func (c *conn) GetAllocation(ctx context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	var m allocationModel
	err := c.col(colAllocations).FindOne(ctx, bson.M{"_id": allocationID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrAllocationNotFound, allocationID)
		}
		return nil, fmt.Errorf("credits/mongo: get allocation: %w", translate(err))
	}
	return fromAllocationModel(&m)
}

func (c *conn) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	m, err := toAllocationModel(a)
	if err != nil {
		return fmt.Errorf("credits/mongo: update allocation: %w", err)
	}
	return c.replace(ctx, colAllocations, m.ID, m, fmt.Errorf("%w: %s", errs.ErrAllocationNotFound, a.ID))
}

func (c *conn) ListAllocations(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	filter := bson.M{}
	if opts.FromAccountID != "" {
		filter["from_account_id"] = opts.FromAccountID
	}
	if opts.ToAccountID != "" {
		filter["to_account_id"] = opts.ToAccountID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	var models []allocationModel
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	if err := c.find(ctx, colAllocations, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list allocations: %w", err)
	}
	return convert(models, fromAllocationModel)
}

// ==================== Package Store ====================

func (c *conn) CreatePackage(ctx context.Context, p *purchase.Package) error {
	m, err := toPackageModel(p)
	if err != nil {
		return fmt.Errorf("credits/mongo: create package: %w", err)
	}
	if _, err := c.col(colPackages).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("credits/mongo: create package %s: %w", p.Code, translate(err))
	}
	return nil
}

func (c *conn) GetPackage(ctx context.Context, packageID id.PackageID) (*purchase.Package, error) {
	return c.getPackage(ctx, bson.M{"_id": packageID.String()}, packageID.String())
}

func (c *conn) GetPackageByCode(ctx context.Context, code string) (*purchase.Package, error) {
	return c.getPackage(ctx, bson.M{"code": code}, code)
}

func (c *conn) getPackage(ctx context.Context, filter bson.M, label string) (*purchase.Package, error) {
	var m packageModel
	err := c.col(colPackages).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, label)
		}
		return nil, fmt.Errorf("credits/mongo: get package: %w", translate(err))
	}
	return fromPackageModel(&m)
}

func (c *conn) UpdatePackage(ctx context.Context, p *purchase.Package) error {
	m, err := toPackageModel(p)
	if err != nil {
		return fmt.Errorf("credits/mongo: update package: %w", err)
	}
	return c.replace(ctx, colPackages, m.ID, m, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, p.ID))
}

func (c *conn) ListPackages(ctx context.Context, activeOnly bool) ([]*purchase.Package, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	var models []packageModel
	sort := bson.D{{Key: "display_order", Value: 1}, {Key: "code", Value: 1}}
	if err := c.find(ctx, colPackages, filter, sort, 0, 0, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list packages: %w", err)
	}
	return convert(models, fromPackageModel)
}

// ==================== Purchase Store ====================

func (c *conn) CreatePurchase(ctx context.Context, p *purchase.Purchase) error {
	m, err := toPurchaseModel(p)
	if err != nil {
		return fmt.Errorf("credits/mongo: create purchase: %w", err)
	}
	if _, err := c.col(colPurchases).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("credits/mongo: create purchase %s: %w", p.ID, translate(err))
	}
	return nil
}

func (c *conn) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	var m purchaseModel
	err := c.col(colPurchases).FindOne(ctx, bson.M{"_id": purchaseID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrPurchaseNotFound, purchaseID)
		}
		return nil, fmt.Errorf("credits/mongo: get purchase: %w", translate(err))
	}
	return fromPurchaseModel(&m)
}

func (c *conn) UpdatePurchase(ctx context.Context, p *purchase.Purchase) error {
	m, err := toPurchaseModel(p)
	if err != nil {
		return fmt.Errorf("credits/mongo: update purchase: %w", err)
	}
	return c.replace(ctx, colPurchases, m.ID, m, fmt.Errorf("%w: %s", errs.ErrPurchaseNotFound, p.ID))
}

func (c *conn) ListPurchases(ctx context.Context, accountID string, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	filter := bson.M{"account_id": accountID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	var models []purchaseModel
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	if err := c.find(ctx, colPurchases, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list purchases: %w", err)
	}
	return convert(models, fromPurchaseModel)
}

// ==================== Transaction Log ====================

func (c *conn) AppendEntries(ctx context.Context, entries []*txlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, 0, len(entries))
	for _, e := range entries {
		m, err := toEntryModel(e)
		if err != nil {
			return fmt.Errorf("credits/mongo: append entry %s: %w", e.ID, err)
		}
		docs = append(docs, m)
	}
	if _, err := c.col(colTransactions).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("credits/mongo: append entries: %w", translate(err))
	}
	return nil
}

func (c *conn) ListEntries(ctx context.Context, q txlog.Query) ([]*txlog.Entry, error) {
	var models []entryModel
	if err := c.find(ctx, colTransactions, entryFilter(q), entrySort(q.Order), q.Limit, q.Offset, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list entries: %w", err)
	}
	return convert(models, fromEntryModel)
}

func entryFilter(q txlog.Query) bson.M {
	filter := bson.M{}
	if q.AccountID != "" {
		filter["account_id"] = q.AccountID
	}
	if q.ReservationID != "" {
		filter["reservation_id"] = q.ReservationID
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		filter["transaction_type"] = bson.M{"$in": types}
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		window := bson.M{}
		if !q.From.IsZero() {
			window["$gte"] = q.From
		}
		if !q.To.IsZero() {
			window["$lt"] = q.To
		}
		filter["created_at"] = window
	}
	return filter
}

func entrySort(order txlog.Order) bson.D {
	if order == txlog.OrderDesc {
		return bson.D{{Key: "created_at", Value: -1}, {Key: "sequence", Value: -1}, {Key: "_id", Value: -1}}
	}
	return bson.D{{Key: "created_at", Value: 1}, {Key: "sequence", Value: 1}, {Key: "_id", Value: 1}}
}

// ==================== Helpers ====================

func (c *conn) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, out any) error {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cur, err := c.col(col).Find(ctx, filter, opts)
	if err != nil {
		return translate(err)
	}
	return cur.All(ctx, out)
}

func (c *conn) replace(ctx context.Context, col, docID string, doc any, notFound error) error {
	res, err := c.col(col).ReplaceOne(ctx, bson.M{"_id": docID}, doc)
	if err != nil {
		return fmt.Errorf("credits/mongo: replace %s %s: %w", col, docID, translate(err))
	}
	if res.MatchedCount == 0 {
		return notFound
	}
	return nil
}

func convert[M, T any](models []M, from func(*M) (T, error)) ([]T, error) {
	out := make([]T, 0, len(models))
	for i := range models {
		v, err := from(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decimalZero() bson.Decimal128 {
	return bson.NewDecimal128(0x3040000000000000, 0)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

const codeNamespaceExists = 48

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists
}

// translate maps driver failures onto the errs taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", errs.ErrAlreadyExists, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %w", errs.ErrConflict, err)
	}
	return err
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {},
		colReservations: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colAllocations: {
			{Keys: bson.D{{Key: "from_account_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "to_account_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colPackages: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "display_order", Value: 1}}},
		},
		colPurchases: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "sequence", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
		},
	}
}
