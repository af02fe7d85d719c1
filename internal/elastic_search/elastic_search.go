package elastic_search

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/log"
	"github.com/ZilDuck/zerosum-market-resolver/internal/marketplace"
	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"
	"github.com/sha1sum/aws_signing_client"
	"go.uber.org/zap"
)

//go:embed mappings/*.json
var mappings embed.FS

var ErrPersistFailed = errors.New("failed to persist documents")

type Index interface {
	GetClient() *elastic.Client

	InstallMappings(ctx context.Context, network string) error

	AddIndexRequest(index string, entity entity.Entity)
	AddIndexRequests(index string, entities []entity.Entity)
	HasRequest(entity entity.Entity) bool
	GetRequests() []Request
	ClearRequests()

	Persist(ctx context.Context) (int, error)
	DeleteSnapshotsBefore(ctx context.Context, index string, before time.Time) error

	StoreSnapshot(ctx context.Context, snapshot *marketplace.Snapshot) (int, error)
}

type index struct {
	client  *elastic.Client
	cache   *cache.Cache
	refresh string
}

type Request struct {
	Index  string
	Entity entity.Entity
}

const (
	saveAttempts     int = 3
	bulkPersistCount int = 500
)

func New() (Index, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	return NewIndex(client, config.Get().ElasticSearch.Refresh), nil
}

func NewIndex(client *elastic.Client, refresh string) Index {
	return index{client, cache.New(5*time.Minute, 10*time.Minute), refresh}
}

func newClient() (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(strings.Join(config.Get().ElasticSearch.Hosts, ",")),
		elastic.SetSniff(config.Get().ElasticSearch.Sniff),
		elastic.SetHealthcheck(config.Get().ElasticSearch.HealthCheck),
	}

	if config.Get().ElasticSearch.Debug {
		opts = append(opts, elastic.SetTraceLog(log.Printf{}))
	}

	if config.Get().ElasticSearch.Aws {
		creds := credentials.NewStaticCredentials(config.Get().Aws.AccessKey, config.Get().Aws.SecretKey, config.Get().Aws.Token)
		awsClient, err := aws_signing_client.New(v4.NewSigner(creds), nil, "es", config.Get().Aws.Region)
		if err != nil {
			return nil, err
		}

		opts = append(opts, elastic.SetHttpClient(awsClient))
		opts = append(opts, elastic.SetScheme("https"))
		return elastic.NewClient(opts...)
	}

	if config.Get().ElasticSearch.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(
			config.Get().ElasticSearch.Username,
			config.Get().ElasticSearch.Password,
		))
	}

	return elastic.NewClient(opts...)
}

func (i index) GetClient() *elastic.Client {
	return i.client
}

func (i index) InstallMappings(ctx context.Context, network string) error {
	zap.L().Info("ElasticSearch: Install Mappings")

	files, err := mappings.ReadDir("mappings")
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		b, err := mappings.ReadFile("mappings/" + f.Name())
		if err != nil {
			return fmt.Errorf("mapping %s: %w", f.Name(), err)
		}

		name := Indices(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))).Get(network)
		if err = i.createIndex(ctx, name, b); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}

	return nil
}

func (i index) createIndex(ctx context.Context, index string, mapping []byte) error {
	exists, err := i.client.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	createIndex, err := i.client.CreateIndex(index).BodyString(string(mapping)).Do(ctx)
	if err != nil {
		return err
	}

	if createIndex.Acknowledged {
		zap.S().Infof("ElasticSearch: Created index %s", index)
	}

	return nil
}

func (i index) AddIndexRequest(index string, entity entity.Entity) {
	zap.L().With(zap.String("index", index), zap.String("slug", entity.Slug())).Debug("ElasticSearch: AddIndexRequest")

	i.cache.Set(entity.Slug(), Request{index, entity}, cache.DefaultExpiration)
}

func (i index) AddIndexRequests(index string, entities []entity.Entity) {
	for _, entity := range entities {
		i.AddIndexRequest(index, entity)
	}
}

func (i index) HasRequest(entity entity.Entity) bool {
	_, found := i.cache.Get(entity.Slug())

	return found
}

func (i index) GetRequests() []Request {
	requests := make([]Request, 0)

	for _, item := range i.cache.Items() {
		requests = append(requests, item.Object.(Request))
	}

	return requests
}

func (i index) ClearRequests() {
	i.cache.Flush()
}

// Persist sends the pending requests in bulk and returns how many documents were
// stored. Pending requests are cleared either way.
func (i index) Persist(ctx context.Context) (int, error) {
	defer i.cache.Flush()

	persisted := 0
	bulk := i.client.Bulk()
	for _, r := range i.GetRequests() {
		bulk.Add(elastic.NewBulkIndexRequest().Index(r.Index).Id(r.Entity.Slug()).Doc(r.Entity))

		if bulk.NumberOfActions() >= bulkPersistCount {
			n, err := i.persist(ctx, bulk)
			persisted += n
			if err != nil {
				return persisted, err
			}
			bulk = i.client.Bulk()
		}
	}

	if bulk.NumberOfActions() != 0 {
		n, err := i.persist(ctx, bulk)
		persisted += n
		if err != nil {
			return persisted, err
		}
	}

	return persisted, nil
}

func (i index) persist(ctx context.Context, bulk *elastic.BulkService) (int, error) {
	actions := bulk.NumberOfActions()
	zap.S().Debugf("ElasticSearch: Persisting %d actions", actions)

	var response *elastic.BulkResponse
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		response, err = bulk.Refresh(i.refresh).Do(ctx)
		if err == nil || !elastic.IsStatusCode(err, http.StatusTooManyRequests) {
			break
		}

		zap.L().With(zap.Error(err), zap.Int("attempt", attempt)).Warn("ElasticSearch: 429 (Too Many Requests)")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	if err != nil {
		return 0, err
	}

	if failed := response.Failed(); len(failed) != 0 {
		for _, f := range failed {
			zap.L().With(
				zap.Any("error", f.Error),
				zap.String("index", f.Index),
				zap.String("id", f.Id),
			).Error("ElasticSearch: Failed to persist request")
		}
		return actions - len(failed), fmt.Errorf("%d of %d: %w", len(failed), actions, ErrPersistFailed)
	}

	return actions, nil
}

// DeleteSnapshotsBefore removes documents of older snapshots.
func (i index) DeleteSnapshotsBefore(ctx context.Context, index string, before time.Time) error {
	res, err := i.client.DeleteByQuery(index).
		Query(elastic.NewRangeQuery("snapshotAt").Lt(before.Format(time.RFC3339Nano))).
		ProceedOnVersionConflict().
		Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return nil
		}
		return err
	}

	zap.L().With(zap.String("index", index), zap.Int64("deleted", res.Deleted)).Info("ElasticSearch: Deleted previous snapshot")

	return nil
}

// StoreSnapshot indexes every listing of the snapshot then drops the listings
// earlier snapshots stored that this one no longer has.
func (i index) StoreSnapshot(ctx context.Context, snapshot *marketplace.Snapshot) (int, error) {
	name := ListingIndex.Get(snapshot.Network)

	i.AddIndexRequests(name, CreateListingDocuments(snapshot))
	stored, err := i.Persist(ctx)
	if err != nil {
		return stored, err
	}

	return stored, i.DeleteSnapshotsBefore(ctx, name, snapshot.CreatedAt)
}
