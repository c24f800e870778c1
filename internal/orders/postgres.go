package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jeffersonhds/storefront/internal/domain"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

func (c *Credentials) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=5",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

const pingTimeout = 5 * time.Second

// PostgresSource serves orders from a relational mirror of the order
// collection.
type PostgresSource struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewPostgresSource opens the pool and checks the server answers. Nothing is
// left open when it fails.
func NewPostgresSource(cred *Credentials, log logrus.FieldLogger) (*PostgresSource, error) {
	db, err := sql.Open("postgres", cred.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open orders database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach orders database at %s:%d: %w", cred.Host, cred.Port, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	log = log.WithFields(logrus.Fields{"component": "orders", "source": "postgres"})
	log.WithField("host", cred.Host).WithField("database", cred.DBName).Info("orders database connected")
	return &PostgresSource{db: db, log: log}, nil
}

// RunMigrations brings the orders schema up to date. Orders keep their own
// migrations table so the database can be shared.
func (s *PostgresSource) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("orders migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cred.MigrationsDirPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("orders migrations at %s: %w", cred.MigrationsDirPath, err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		s.log.Debug("orders schema up to date")
	case err != nil:
		return fmt.Errorf("orders migrations failed: %w", err)
	default:
		version, _, _ := m.Version()
		s.log.WithField("version", version).Info("orders schema migrated")
	}
	return nil
}

const selectColumns = `id, user_id, status, total, items, delivery_address, tracking_code,
	estimated_delivery, delivered_date, created_at`

func (s *PostgresSource) ListOrders(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.Order, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
			userID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM orders WHERE user_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`,
			userID, *before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			s.log.WithError(err).Warn("skipping malformed order row")
			continue
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (s *PostgresSource) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return &o, nil
}

func (s *PostgresSource) SaveOrder(ctx context.Context, order domain.Order) (string, error) {
	id := uuid.New()
	if parsed, err := uuid.Parse(order.ID); err == nil {
		id = parsed
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (id, user_id, status, total, items, delivery_address, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		id,
		order.UserID,
		domain.RemoteStatusPaid,
		order.Total,
		itemsJSON,
		order.DeliveryAddress,
		order.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id.String(), nil
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		status    string
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&status,
		&o.Total,
		&itemsJSON,
		&o.DeliveryAddress,
		&o.TrackingCode,
		&o.EstimatedDelivery,
		&o.DeliveredDate,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.ParseOrderStatus(status)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order %s items: %w", o.ID, err)
	}
	for i := range o.Items {
		if o.Items[i].ProductName == "" {
			o.Items[i].ProductName = domain.DefaultProductName
		}
		if o.Items[i].Quantity <= 0 {
			o.Items[i].Quantity = 1
		}
	}
	return o, nil
}
