package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/internal/service"
	"github.com/hlachaal/24hkids-platform/pkg/postgres"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pgDSN is set by TestMain when BOOKING_PG_INTEGRATION=1 and a PostgreSQL
// container is running.
var pgDSN string

func TestMain(m *testing.M) {
	if os.Getenv("BOOKING_PG_INTEGRATION") != "1" {
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to docker: %v\n", err)
		os.Exit(1)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=kids",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=kids_booking",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start postgres: %v\n", err)
		os.Exit(1)
	}
	_ = resource.Expire(300)

	dsn := fmt.Sprintf("postgres://kids:secret@%s/kids_booking?sslmode=disable", resource.GetHostPort("5432/tcp"))
	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	}); err != nil {
		fmt.Fprintf(os.Stderr, "postgres did not become ready: %v\n", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}
	pgDSN = dsn

	code := m.Run()
	_ = pool.Purge(resource)
	os.Exit(code)
}

func openPostgresStore(t *testing.T) repository.Store {
	t.Helper()
	if pgDSN == "" {
		t.Skip("set BOOKING_PG_INTEGRATION=1 to run PostgreSQL tests")
	}

	db, err := postgres.Open(pgDSN, nil)
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(db))
	_, err = db.Exec(`TRUNCATE audit_logs, outbox, bookings, events, children, guardians RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	store := repository.NewSQLStore(db, repository.DialectPostgres, 2*time.Second)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStoreContract(t *testing.T) {
	if pgDSN == "" {
		t.Skip("set BOOKING_PG_INTEGRATION=1 to run PostgreSQL tests")
	}

	contract := map[string]func(t *testing.T, store repository.Store){
		"family and events": func(t *testing.T, store repository.Store) {
			f := seed(t, store, 1, 2)
			_, err := store.Events().GetByID(context.Background(), f.events[1].ID)
			require.NoError(t, err)
		},
		"rollback": func(t *testing.T, store repository.Store) {
			f := seed(t, store, 1, 1)
			err := store.InEventTx(context.Background(), f.events[0].ID, func(tx repository.EventTx) error {
				require.NoError(t, tx.UpdateEvent(context.Background(), 9, entity.EventStatusFull, base))
				return entity.ErrValidation
			})
			assert.ErrorIs(t, err, entity.ErrValidation)

			event, err := store.Events().GetByID(context.Background(), f.events[0].ID)
			require.NoError(t, err)
			assert.Equal(t, 2, event.Capacity)
		},
		"windows skip the locked event": confirmedWindowsSkipLockedEvent,
		"event details and delete":      eventDetailsAndDelete,
		"child tx":                      childTxContract,
		"guardian update and delete":    guardianUpdateAndDelete,
		"audit list":                    auditListContract,
	}
	for name, test := range contract {
		t.Run(name, func(t *testing.T) {
			test(t, openPostgresStore(t))
		})
	}
}

// TestPostgresConcurrentBookings races more children than seats into one
// event through the booking service and checks the confirmed count never
// exceeds capacity.
func TestPostgresConcurrentBookings(t *testing.T) {
	store := openPostgresStore(t)
	const children, capacity = 20, 5

	f := seed(t, store, children, 1)
	eventID := f.events[0].ID
	ctx := context.Background()

	require.NoError(t, store.InEventTx(ctx, eventID, func(tx repository.EventTx) error {
		return tx.UpdateEvent(ctx, capacity, entity.EventStatusActive, base)
	}))

	bookings := service.NewBookingService(store, clock.System(), nil, nil, service.Options{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		TxTimeout:   5 * time.Second,
	})

	var wg sync.WaitGroup
	errs := make(chan error, children)
	for _, child := range f.children {
		wg.Add(1)
		go func(childID int64) {
			defer wg.Done()
			_, err := bookings.Create(ctx, &service.CreateBookingRequest{ChildID: childID, EventID: eventID})
			errs <- err
		}(child.ID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	confirmed, err := store.Bookings().CountByEventAndStatus(ctx, eventID, entity.BookingStatusConfirmed)
	require.NoError(t, err)
	waitlisted, err := store.Bookings().CountByEventAndStatus(ctx, eventID, entity.BookingStatusWaitlist)
	require.NoError(t, err)
	assert.Equal(t, capacity, confirmed)
	assert.Equal(t, children-capacity, waitlisted)

	event, err := store.Events().GetByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, entity.EventStatusFull, event.Status)
}
