package store

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/rajivgeraev/recyclables-api/internal/db"
	"github.com/rajivgeraev/recyclables-api/internal/models"
)

const (
	listingColumns = `r.id, r.user_id, r.title, r.description, r.category, r.bottle_size, r.quantity,
		r.price_per_unit, r.total_price, r.image_url, r.location, r.status, r.is_negotiable,
		r.contact_phone, r.created_at, r.updated_at,
		p.full_name AS profile_full_name, p.email AS profile_email,
		p.avatar_url AS profile_avatar_url, p.phone AS profile_phone`

	profileJoin = `LEFT JOIN user_profiles p ON p.id = r.user_id`

	orderColumns = `o.id, o.recyclable_id, o.buyer_id, o.seller_id, o.quantity_ordered, o.total_amount,
		o.status, o.buyer_notes, o.seller_notes, o.created_at, o.updated_at,
		b.full_name AS buyer_full_name, b.email AS buyer_email,
		b.avatar_url AS buyer_avatar_url, b.phone AS buyer_phone,
		s.full_name AS seller_full_name, s.email AS seller_email,
		s.avatar_url AS seller_avatar_url, s.phone AS seller_phone`

	orderFrom = `recyclable_orders o
		LEFT JOIN user_profiles b ON b.id = o.buyer_id
		LEFT JOIN user_profiles s ON s.id = o.seller_id`

	profileColumns = `id, telegram_id, full_name, email, avatar_url, phone, created_at, updated_at`
)

// PostgresStore хранилище поверх PostgreSQL
type PostgresStore struct {
	db db.DB
}

func NewPostgresStore(database db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// ListAll возвращает все объявления, новые первыми
func (s *PostgresStore) ListAll(ctx context.Context) ([]models.Recyclable, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var rows []recyclableRow
	err := s.db.Select(ctx, &rows, `
		SELECT `+listingColumns+`
		FROM recyclables r `+profileJoin+`
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, models.WrapStoreError("recyclables.list_all", err)
	}
	return toListings(rows), nil
}

// GetByID возвращает объявление или nil, если его нет
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Recyclable, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row recyclableRow
	err := s.db.Get(ctx, &row, `
		SELECT `+listingColumns+`
		FROM recyclables r `+profileJoin+`
		WHERE r.id = $1
	`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, models.WrapStoreError("recyclables.get", err)
	}

	listing := row.toModel()
	return &listing, nil
}

// ListByOwner возвращает объявления пользователя, новые первыми
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Recyclable, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var rows []recyclableRow
	err := s.db.Select(ctx, &rows, `
		SELECT `+listingColumns+`
		FROM recyclables r `+profileJoin+`
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, models.WrapStoreError("recyclables.list_by_owner", err)
	}
	return toListings(rows), nil
}

// Create вставляет объявление; статус всегда available
func (s *PostgresStore) Create(ctx context.Context, ownerID uuid.UUID, input models.CreateRecyclableInput) (*models.Recyclable, error) {
	location, err := encodeLocation(input.Location)
	if err != nil {
		return nil, models.WrapStoreError("recyclables.create", err)
	}

	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row recyclableRow
	err = s.db.Get(ctx, &row, `
		WITH inserted AS (
			INSERT INTO recyclables (
				user_id, title, description, category, bottle_size, quantity, price_per_unit,
				total_price, image_url, location, status, is_negotiable, contact_phone
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING *
		)
		SELECT `+listingColumns+`
		FROM inserted r `+profileJoin,
		ownerID, input.Title, nullable(input.Description), string(input.Category),
		nullable(string(input.BottleSize)), input.Quantity, input.PricePerUnit,
		input.TotalPrice, nullable(input.ImageURL), location, string(models.StatusAvailable),
		negotiable(input), nullable(input.ContactPhone),
	)
	if err != nil {
		return nil, models.WrapStoreError("recyclables.create", err)
	}

	listing := row.toModel()
	return &listing, nil
}

// Update сливает переданные поля с существующей строкой.
// Пустая строка в текстовом необязательном поле очищает его.
func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, input models.UpdateRecyclableInput) (*models.Recyclable, error) {
	if input.IsEmpty() {
		listing, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if listing == nil {
			return nil, models.ErrNotFound
		}
		return listing, nil
	}

	var location []byte
	if input.Location != nil {
		encoded, err := encodeLocation(input.Location)
		if err != nil {
			return nil, models.WrapStoreError("recyclables.update", err)
		}
		location = encoded
		if location == nil {
			location = []byte("null")
		}
	}

	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row recyclableRow
	err := s.db.Get(ctx, &row, `
		WITH updated AS (
			UPDATE recyclables SET
				title = COALESCE($2, title),
				description = NULLIF(COALESCE($3, description), ''),
				category = COALESCE($4, category),
				bottle_size = NULLIF(COALESCE($5, bottle_size), ''),
				quantity = COALESCE($6, quantity),
				price_per_unit = COALESCE($7, price_per_unit),
				total_price = COALESCE($8, total_price),
				image_url = NULLIF(COALESCE($9, image_url), ''),
				location = COALESCE($10, location),
				is_negotiable = COALESCE($11, is_negotiable),
				contact_phone = NULLIF(COALESCE($12, contact_phone), ''),
				updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+listingColumns+`
		FROM updated r `+profileJoin,
		id, input.Title, input.Description, categoryArg(input.Category), bottleSizeArg(input.BottleSize),
		input.Quantity, input.PricePerUnit, input.TotalPrice, input.ImageURL, location,
		input.IsNegotiable, input.ContactPhone,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, models.WrapStoreError("recyclables.update", err)
	}

	listing := row.toModel()
	return &listing, nil
}

// Delete удаляет строку; удаление несуществующего id ничего не делает
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx, `DELETE FROM recyclables WHERE id = $1`, id)
	return models.WrapStoreError("recyclables.delete", err)
}

// SetStatus условно меняет статус: строка обновляется, только если ее статус все еще from
func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, from, to models.RecyclableStatus) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `
		UPDATE recyclables SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3
	`, string(to), id, string(from))
	if err != nil {
		return models.WrapStoreError("recyclables.set_status", err)
	}
	if tag.RowsAffected() == 0 {
		return classifyStatusMiss(ctx, s.db, `SELECT EXISTS (SELECT 1 FROM recyclables WHERE id = $1)`, id)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// classifyStatusMiss отличает отсутствующую строку от изменившегося статуса
func classifyStatusMiss(ctx context.Context, q getter, existsQuery string, id uuid.UUID) error {
	var exists bool
	if err := q.Get(ctx, &exists, existsQuery, id); err != nil {
		return models.WrapStoreError("status.check", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrStatusChanged
}

// CreateOrder в одной транзакции списывает количество условным UPDATE и вставляет заказ.
// Если списать нельзя, ничего не записывается.
func (s *PostgresStore) CreateOrder(ctx context.Context, buyerID uuid.UUID, input models.CreateOrderInput) (*models.RecyclableOrder, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, models.WrapStoreError("orders.create", err)
	}
	defer tx.Rollback(ctx)

	if err = s.reserve(ctx, tx, input.RecyclableID, input.QuantityOrdered); err != nil {
		return nil, err
	}

	var row orderRow
	err = tx.Get(ctx, &row, `
		INSERT INTO recyclable_orders (
			recyclable_id, buyer_id, seller_id, quantity_ordered, total_amount, status, buyer_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, input.RecyclableID, buyerID, input.SellerID, input.QuantityOrdered, input.TotalAmount,
		string(models.OrderPending), nullable(input.BuyerNotes))
	if err != nil {
		return nil, models.WrapStoreError("orders.create", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, models.WrapStoreError("orders.commit", err)
	}

	order := row.toModel()
	return &order, nil
}

// reserve условным UPDATE списывает n единиц, пересчитывает total_price
// и переводит объявление в sold при нулевом остатке
func (s *PostgresStore) reserve(ctx context.Context, tx db.Tx, id uuid.UUID, n int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE recyclables
		SET quantity = quantity - $1,
			total_price = ROUND((quantity - $1) * price_per_unit, 2),
			status = CASE WHEN quantity = $1 THEN $4 ELSE status END,
			updated_at = NOW()
		WHERE id = $2 AND status = $3 AND quantity >= $1
	`, n, id, string(models.StatusAvailable), string(models.StatusSold))
	if err != nil {
		return models.WrapStoreError("orders.reserve_quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyReserveFailure(ctx, tx, id)
	}
	return nil
}

// restock возвращает n единиц; распроданное объявление снова available.
// Удаленное объявление пропускается.
func (s *PostgresStore) restock(ctx context.Context, tx db.Tx, id uuid.UUID, n int) error {
	_, err := tx.Exec(ctx, `
		UPDATE recyclables
		SET quantity = quantity + $1,
			total_price = ROUND((quantity + $1) * price_per_unit, 2),
			status = CASE WHEN status = $3 AND quantity = 0 THEN $4 ELSE status END,
			updated_at = NOW()
		WHERE id = $2
	`, n, id, string(models.StatusSold), string(models.StatusAvailable))
	return models.WrapStoreError("orders.restock_quantity", err)
}

type reserveState struct {
	Status   string `db:"status"`
	Quantity int    `db:"quantity"`
}

// classifyReserveFailure объясняет, почему условное списание не затронуло строк
func (s *PostgresStore) classifyReserveFailure(ctx context.Context, tx db.Tx, id uuid.UUID) error {
	var current reserveState
	err := tx.Get(ctx, &current, `SELECT status, quantity FROM recyclables WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return models.ErrNotFound
		}
		return models.WrapStoreError("orders.reserve_quantity", err)
	}
	if models.RecyclableStatus(current.Status) != models.StatusAvailable {
		return models.ErrListingUnavailable
	}
	return models.ErrInsufficientQuantity
}

// GetOrderByID возвращает заказ с профилями сторон или nil
func (s *PostgresStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.RecyclableOrder, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row orderRow
	err := s.db.Get(ctx, &row, `SELECT `+orderColumns+` FROM `+orderFrom+` WHERE o.id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, models.WrapStoreError("orders.get", err)
	}

	order := row.toModel()
	return &order, nil
}

// ListOrdersForUser возвращает заказы, где пользователь покупатель или продавец, новые первыми
func (s *PostgresStore) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]models.RecyclableOrder, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var rows []orderRow
	err := s.db.Select(ctx, &rows, `
		SELECT `+orderColumns+`
		FROM `+orderFrom+`
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, models.WrapStoreError("orders.list_for_user", err)
	}

	orders := make([]models.RecyclableOrder, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}

	seen := make(map[uuid.UUID]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if !seen[row.RecyclableID] {
			seen[row.RecyclableID] = true
			ids = append(ids, row.RecyclableID.String())
		}
	}

	var listingRows []recyclableRow
	err = s.db.Select(ctx, &listingRows, `
		SELECT `+listingColumns+`
		FROM recyclables r `+profileJoin+`
		WHERE r.id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return nil, models.WrapStoreError("orders.list_for_user", err)
	}

	listings := make(map[uuid.UUID]models.Recyclable, len(listingRows))
	for _, row := range listingRows {
		listings[row.ID] = row.toModel()
	}

	for _, row := range rows {
		order := row.toModel()
		if listing, ok := listings[order.RecyclableID]; ok {
			order.Recyclable = &listing
		}
		orders = append(orders, order)
	}
	return orders, nil
}

type orderStockRow struct {
	RecyclableID    uuid.UUID `db:"recyclable_id"`
	QuantityOrdered int       `db:"quantity_ordered"`
}

// SetOrderStatus условно меняет статус заказа и в той же транзакции двигает остаток объявления
func (s *PostgresStore) SetOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return models.WrapStoreError("orders.set_status", err)
	}
	defer tx.Rollback(ctx)

	var row orderStockRow
	err = tx.Get(ctx, &row, `
		UPDATE recyclable_orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING recyclable_id, quantity_ordered
	`, string(to), id, string(from))
	if err != nil {
		if pgxscan.NotFound(err) {
			return classifyStatusMiss(ctx, tx, `SELECT EXISTS (SELECT 1 FROM recyclable_orders WHERE id = $1)`, id)
		}
		return models.WrapStoreError("orders.set_status", err)
	}

	switch restockDirection(from, to) {
	case 1:
		err = s.restock(ctx, tx, row.RecyclableID, row.QuantityOrdered)
	case -1:
		err = s.reserve(ctx, tx, row.RecyclableID, row.QuantityOrdered)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.WrapStoreError("orders.commit", err)
	}
	return nil
}

// UpsertTelegramProfile создает профиль по telegram_id или обновляет имя и фото
func (s *PostgresStore) UpsertTelegramProfile(ctx context.Context, input models.TelegramProfileInput) (*models.Profile, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row profileRow
	err := s.db.Get(ctx, &row, `
		INSERT INTO user_profiles (telegram_id, full_name, username, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			username = EXCLUDED.username,
			avatar_url = COALESCE(EXCLUDED.avatar_url, user_profiles.avatar_url),
			updated_at = NOW()
		RETURNING `+profileColumns,
		input.TelegramID, input.FullName(), nullable(input.Username), input.AvatarURL(),
	)
	if err != nil {
		return nil, models.WrapStoreError("profiles.upsert", err)
	}

	profile := row.toModel()
	return &profile, nil
}

// GetProfile возвращает профиль или nil
func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var row profileRow
	err := s.db.Get(ctx, &row, `SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, models.WrapStoreError("profiles.get", err)
	}

	profile := row.toModel()
	return &profile, nil
}

func toListings(rows []recyclableRow) []models.Recyclable {
	out := make([]models.Recyclable, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

func categoryArg(c *models.RecyclableCategory) *string {
	if c == nil {
		return nil
	}
	v := string(*c)
	return &v
}

func bottleSizeArg(b *models.BottleSize) *string {
	if b == nil {
		return nil
	}
	v := string(*b)
	return &v
}

var _ Store = (*PostgresStore)(nil)
