package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"kitchenline/server/internal/models"
)

// DefaultNotifyChannel канал LISTEN/NOTIFY для изменений кухни
const DefaultNotifyChannel = "kitchen_changes"

// PgNotifyFeed push-канал изменений через PostgreSQL LISTEN/NOTIFY.
// Держит отдельное соединение pgx, потому что пул GORM не отдает соединение под LISTEN.
type PgNotifyFeed struct {
	dsn     string
	channel string
	backoff time.Duration
}

// NewPgNotifyFeed создает подписку на канал
func NewPgNotifyFeed(dsn, channel string) *PgNotifyFeed {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &PgNotifyFeed{dsn: dsn, channel: channel, backoff: 2 * time.Second}
}

// Subscribe слушает канал до отмены ctx, переподключаясь после обрыва
func (f *PgNotifyFeed) Subscribe(ctx context.Context, handler func(ctx context.Context, ev models.ChangeEvent)) error {
	for {
		err := f.listen(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("⚠️ PgNotifyFeed: соединение потеряно (%v), переподключение через %s", err, f.backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.backoff):
		}
	}
}

func (f *PgNotifyFeed) listen(ctx context.Context, handler func(ctx context.Context, ev models.ChangeEvent)) error {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	log.Printf("✅ PgNotifyFeed: LISTEN %s", f.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			log.Printf("⚠️ PgNotifyFeed: не удалось разобрать payload: %v", err)
			continue
		}
		handler(ctx, ev)
	}
}

const notifyFunctionSQL = `
CREATE OR REPLACE FUNCTION kitchen_notify_change() RETURNS trigger AS $$
DECLARE
	rec_new json;
	rec_old json;
BEGIN
	IF TG_OP <> 'DELETE' THEN rec_new := row_to_json(NEW); END IF;
	IF TG_OP <> 'INSERT' THEN rec_old := row_to_json(OLD); END IF;
	PERFORM pg_notify(TG_ARGV[0], json_build_object(
		'table', TG_TABLE_NAME,
		'op', TG_OP,
		'record_id', COALESCE(rec_new->>'id', rec_old->>'id'),
		'branch_id', COALESCE(rec_new->>'branch_id', rec_old->>'branch_id', ''),
		'new', rec_new,
		'old', rec_old,
		'at', now()
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// InstallNotifyTriggers создает триггеры pg_notify на таблицах кухни
func InstallNotifyTriggers(db *gorm.DB, channel string) error {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if err := db.Exec(notifyFunctionSQL).Error; err != nil {
		return fmt.Errorf("create notify function: %w", err)
	}

	channelLiteral := "'" + strings.ReplaceAll(channel, "'", "''") + "'"
	tables := []string{models.TableOrders, models.TableOrderItems, models.TableStationLogs, models.TableStations}
	for _, table := range tables {
		stmts := []string{
			fmt.Sprintf("DROP TRIGGER IF EXISTS kitchen_notify ON %s", table),
			fmt.Sprintf("CREATE TRIGGER kitchen_notify AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION kitchen_notify_change(%s)", table, channelLiteral),
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("install trigger on %s: %w", table, err)
			}
		}
	}
	log.Printf("✅ Триггеры NOTIFY %s установлены на %d таблиц", channel, len(tables))
	return nil
}
