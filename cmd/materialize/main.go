// Batch materializer: ensures concrete trips exist for every active base
// over the next N days. Run from cron ahead of the booking window so the
// on-demand path in the API stays a fallback.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rideline/rideline/internal/adapters/crdb"
	mongoadapter "github.com/rideline/rideline/internal/adapters/mongo"
	"github.com/rideline/rideline/internal/config"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/materialize"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	days := flag.Int("days", 7, "materialize trips this many days ahead, starting today")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := observability.NewLogger()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(ctx)
	catalog := mongoadapter.NewCatalogRepository(mongoClient.Database("rideline"), logger)

	mat := materialize.NewMaterializer(catalog, repo, notify.Nop{}, logger)

	bases, err := catalog.ListActiveBases(ctx)
	if err != nil {
		log.Fatalf("failed to list active bases: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	created := make(chan string, len(bases)*(*days))

	for _, base := range bases {
		base := base
		g.Go(func() error {
			for d := 0; d < *days; d++ {
				serviceDate := time.Now().AddDate(0, 0, d).Format("2006-01-02")
				_, err := mat.EnsureTrip(gctx, base.ID, serviceDate)
				if errors.Is(err, domain.ErrBaseNotEligible) {
					continue
				}
				if err != nil {
					return errors.Wrapf(err, "base %s date %s", base.ID, serviceDate)
				}
				created <- base.ID.String() + " " + serviceDate
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("materialization failed: %v", err)
	}
	close(created)

	n := 0
	for range created {
		n++
	}
	logger.Info("ensured ", n, " trips across ", len(bases), " bases")
}
