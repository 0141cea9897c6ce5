package activities

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.temporal.io/sdk/activity"

	"github.com/channelport/channelport-api/internal/driver"
	"github.com/channelport/channelport-api/internal/importer"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/runs"
	"github.com/channelport/channelport-api/internal/statusmap"
	"github.com/channelport/channelport-api/internal/temporal"
	"github.com/channelport/channelport-api/internal/vault"
)

// Activities bundles everything chunk processing needs. A single worker
// registers one instance; the workflow only sees the method set.
type Activities struct {
	TaskRepo        repository.TaskRepository
	IntegrationRepo repository.IntegrationRepository
	CatalogRepo     repository.CatalogRepository
	CustomerRepo    repository.CustomerRepository
	OrderRepo       repository.OrderRepository
	Tracker         *runs.Tracker
	Registry        *driver.Registry
	Vault           *vault.Vault
	Resolver        *importer.Resolver
	Mapper          *statusmap.Mapper
	ChunkSize       int
}

func (a *Activities) chunkSize() int {
	if a.ChunkSize <= 0 {
		return 500
	}
	return a.ChunkSize
}

func (a *Activities) MarkRunQueuedActivity(ctx context.Context, params temporal.ImportParams) error {
	return a.Tracker.MarkQueued(ctx, params.TenantID, params.RunID)
}

func (a *Activities) FailRunActivity(ctx context.Context, params temporal.ImportParams, message string) error {
	_, err := a.Tracker.Fail(ctx, params.TenantID, params.RunID, message)
	if err == repository.ErrRunTerminal {
		return nil
	}
	return err
}

func (a *Activities) BeginRunActivity(ctx context.Context, params temporal.ImportParams, total int64, chunks int) error {
	return a.Tracker.Begin(ctx, params.TenantID, params.RunID, total, chunks)
}

func (a *Activities) CleanupSourceActivity(ctx context.Context, path string) error {
	a.Resolver.Cleanup(path, true)
	return nil
}

// PrepareImportActivity resolves the task's source and decides how the
// run is split. Order-resource tasks on order-capable integrations fetch
// pages from the platform driver; everything else parses a resolved file.
func (a *Activities) PrepareImportActivity(ctx context.Context, params temporal.ImportParams) (*temporal.PrepareImportResult, error) {
	logger := activity.GetLogger(ctx)

	task, err := a.TaskRepo.Get(params.TenantID, params.TaskID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch task")
	}

	if task.ResourceType == models.ResourceTypeOrders {
		return a.prepareOrderImport(ctx, params, task)
	}

	path, temporary, err := a.Resolver.Resolve(ctx, task.SourceType, task.SourceLocation)
	if err != nil {
		return nil, err
	}

	parser, err := importer.ParserFor(task.Format)
	if err != nil {
		return nil, err
	}
	it, err := parser.Records(path, parseOptions(task))
	if err != nil {
		return nil, err
	}
	total, err := importer.CountRecords(it)
	it.Close()
	if err != nil {
		return nil, errors.Wrap(err, "count records")
	}

	logger.Info("Source resolved.", "path", path, "records", total)
	return &temporal.PrepareImportResult{
		SourcePath: path,
		Temporary:  temporary,
		TotalCount: int64(total),
		Chunks:     importer.SplitChunks(total, a.chunkSize()),
	}, nil
}

func (a *Activities) prepareOrderImport(ctx context.Context, params temporal.ImportParams, task models.Task) (*temporal.PrepareImportResult, error) {
	integ, imp, cfg, err := a.orderImporter(ctx, params.TenantID, task)
	if err != nil {
		return nil, err
	}

	opts := models.OrderFetchOptions{Limit: 1}
	if since := driver.LastSyncDate(&integ); since != nil {
		opts.Since = since
	}
	page, err := imp.FetchOrders(ctx, cfg, opts)
	if err != nil {
		return nil, errors.Wrap(err, "probe order count")
	}

	return &temporal.PrepareImportResult{
		TotalCount:  page.TotalCount,
		Chunks:      importer.SplitChunks(int(page.TotalCount), a.chunkSize()),
		DriverFetch: true,
	}, nil
}

// ProcessChunkActivity processes one chunk and folds its counters into
// the run. Record-level failures are counted and sampled, never fatal;
// only infrastructure errors fail the activity.
func (a *Activities) ProcessChunkActivity(ctx context.Context, params temporal.ChunkParams) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Processing chunk.", "RunID", params.RunID, "chunk", params.Chunk.Index)

	task, err := a.TaskRepo.Get(params.TenantID, params.TaskID)
	if err != nil {
		return errors.Wrap(err, "fetch task")
	}

	var result repository.ChunkResult
	if params.DriverFetch {
		result, err = a.processOrderChunk(ctx, params, task)
	} else {
		result, err = a.processFileChunk(ctx, params, task)
	}
	if err != nil {
		return err
	}

	activity.RecordHeartbeat(ctx, params.Chunk.Index)
	_, err = a.Tracker.ApplyChunkResult(ctx, params.TenantID, params.RunID, result)
	return err
}

func (a *Activities) processFileChunk(ctx context.Context, params temporal.ChunkParams, task models.Task) (repository.ChunkResult, error) {
	parser, err := importer.ParserFor(task.Format)
	if err != nil {
		return repository.ChunkResult{}, err
	}
	it, err := parser.Records(params.SourcePath, parseOptions(task))
	if err != nil {
		return repository.ChunkResult{}, err
	}
	defer it.Close()

	// Skip to the chunk's offset. Iterators are forward-only.
	for skipped := 0; skipped < params.Chunk.Offset; skipped++ {
		if _, err := it.Next(); err != nil {
			if err == io.EOF {
				return repository.ChunkResult{}, nil
			}
			return repository.ChunkResult{}, errors.Wrap(err, "seek chunk offset")
		}
	}

	result := repository.ChunkResult{
		Log: []models.RunLogEntry{
			runs.LogEntry(models.LogLevelInfo, "chunk %d: records %d-%d",
				params.Chunk.Index, params.Chunk.Offset, params.Chunk.Offset+params.Chunk.Limit-1),
		},
	}
	for n := 0; n < params.Chunk.Limit; n++ {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn record mid-chunk is a data problem, not an infra one.
			result.Processed++
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", params.Chunk.Offset+n, err))
			continue
		}

		result.Processed++
		if !importer.MatchesFilters(rec, task.Filters) {
			result.Skipped++
			continue
		}

		if err := a.importRecord(ctx, task, rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", params.Chunk.Offset+n, err))
			continue
		}
		result.Succeeded++
		result.Samples = append(result.Samples, map[string]string(rec))
	}

	trimChunkResult(&result)
	return result, nil
}

// importRecord maps one raw record and writes it to the catalog based on
// the task's resource type.
func (a *Activities) importRecord(ctx context.Context, task models.Task, rec importer.Record) error {
	mapped, err := importer.ApplyMappings(rec, task.Mappings)
	if err != nil {
		return err
	}

	switch task.ResourceType {
	case models.ResourceTypeProducts:
		return a.upsertProduct(ctx, task, mapped["product"])
	case models.ResourceTypeCategories:
		return a.upsertCategory(ctx, task, mapped["category"])
	case models.ResourceTypeStock:
		return a.updateStock(ctx, task, mapped["stock"])
	case models.ResourceTypeCustomers:
		return a.upsertCustomer(ctx, task, mapped["customer"])
	default:
		return errors.Errorf("unsupported resource type %q", task.ResourceType)
	}
}

func (a *Activities) upsertProduct(ctx context.Context, task models.Task, fields map[string]string) error {
	if fields["sku"] == "" {
		return errors.New("product record has no sku")
	}
	price, err := importer.ParseDecimal(fields["price"])
	if err != nil {
		return err
	}
	stock, err := parseInt(fields["stock"])
	if err != nil {
		return err
	}

	product := models.Product{
		TenantID:    task.TenantID,
		CatalogID:   task.CatalogID,
		SKU:         fields["sku"],
		Name:        fields["name"],
		Description: fields["description"],
		Price:       price,
		Stock:       stock,
		IsActive:    parseBool(fields["active"], true),
	}

	if slug := fields["category_slug"]; slug != "" {
		category, err := a.CatalogRepo.GetCategoryBySlug(ctx, task.TenantID, task.CatalogID, slug)
		if err == nil {
			product.CategoryID = &category.ID
		} else if err != repository.ErrNotFound {
			return err
		}
	}

	_, _, err = a.CatalogRepo.UpsertProduct(ctx, product)
	return err
}

func (a *Activities) upsertCategory(ctx context.Context, task models.Task, fields map[string]string) error {
	if fields["slug"] == "" {
		return errors.New("category record has no slug")
	}
	category := models.Category{
		TenantID:  task.TenantID,
		CatalogID: task.CatalogID,
		Slug:      fields["slug"],
		Name:      fields["name"],
	}
	if parentSlug := fields["parent_slug"]; parentSlug != "" {
		parent, err := a.CatalogRepo.GetCategoryBySlug(ctx, task.TenantID, task.CatalogID, parentSlug)
		if err == nil {
			category.ParentID = &parent.ID
		} else if err != repository.ErrNotFound {
			return err
		}
	}
	_, _, err := a.CatalogRepo.UpsertCategory(ctx, category)
	return err
}

func (a *Activities) updateStock(ctx context.Context, task models.Task, fields map[string]string) error {
	if fields["sku"] == "" {
		return errors.New("stock record has no sku")
	}
	quantity, err := parseInt(fields["quantity"])
	if err != nil {
		return err
	}
	return a.CatalogRepo.UpdateStock(ctx, task.TenantID, task.CatalogID, fields["sku"], quantity)
}

func (a *Activities) upsertCustomer(ctx context.Context, task models.Task, fields map[string]string) error {
	if fields["email"] == "" {
		return errors.New("customer record has no email")
	}
	_, _, err := a.CustomerRepo.Upsert(ctx, models.Customer{
		TenantID:  task.TenantID,
		Email:     fields["email"],
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Phone:     fields["phone"],
	})
	return err
}

func (a *Activities) processOrderChunk(ctx context.Context, params temporal.ChunkParams, task models.Task) (repository.ChunkResult, error) {
	integ, imp, cfg, err := a.orderImporter(ctx, params.TenantID, task)
	if err != nil {
		return repository.ChunkResult{}, err
	}

	opts := models.OrderFetchOptions{
		Limit:  params.Chunk.Limit,
		Offset: params.Chunk.Offset,
	}
	if since := driver.LastSyncDate(&integ); since != nil {
		opts.Since = since
	}
	page, err := imp.FetchOrders(ctx, cfg, opts)
	if err != nil {
		return repository.ChunkResult{}, errors.Wrap(err, "fetch orders")
	}

	translation := imp.Translation(cfg)
	rules := imp.PaymentRules(cfg)

	result := repository.ChunkResult{
		Log: []models.RunLogEntry{
			runs.LogEntry(models.LogLevelInfo, "chunk %d: fetched %d orders", params.Chunk.Index, len(page.Orders)),
		},
	}
	var newest time.Time
	for _, order := range page.Orders {
		result.Processed++

		order.Status, err = a.Mapper.MapOrderStatus(ctx, params.TenantID, translation, order.RawStatus)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: %v", order.ExternalID, err))
			continue
		}
		rawPayment := order.RawPaymentStatus
		if rawPayment == "" {
			rawPayment = order.RawStatus
		}
		paymentKey := statusmap.ClassifyPayment(rules, rawPayment, order.TotalPaid, order.TotalAmount)
		order.PaymentStatus, err = a.Mapper.MapPaymentClass(ctx, params.TenantID, translation, paymentKey)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: %v", order.ExternalID, err))
			continue
		}

		if _, err := a.OrderRepo.Upsert(ctx, params.TenantID, integ.ID, order); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: %v", order.ExternalID, err))
			continue
		}
		result.Succeeded++
		result.Samples = append(result.Samples, map[string]string{
			"external_id": order.ExternalID,
			"status":      order.Status,
			"payment":     order.PaymentStatus,
			"total":       order.TotalAmount.String(),
		})
		if order.PlacedAt.After(newest) {
			newest = order.PlacedAt
		}
	}

	// Advance the incremental checkpoint to the newest imported order so
	// the next run only pulls what changed since.
	if !newest.IsZero() {
		driver.SetLastSyncDate(&integ, newest)
		if err := a.IntegrationRepo.UpdateMetadata(params.TenantID, integ.ID, integ.Metadata); err != nil {
			return repository.ChunkResult{}, errors.Wrap(err, "update sync checkpoint")
		}
		if err := a.IntegrationRepo.MarkSynced(params.TenantID, integ.ID, time.Now().UTC()); err != nil {
			return repository.ChunkResult{}, errors.Wrap(err, "mark integration synced")
		}
	}

	trimChunkResult(&result)
	return result, nil
}

// orderImporter loads the task's integration, checks the order-import
// capability, and reveals the decrypted driver config.
func (a *Activities) orderImporter(ctx context.Context, tenantID string, task models.Task) (models.Integration, driver.OrderImporter, map[string]interface{}, error) {
	integ, err := a.IntegrationRepo.Get(tenantID, task.IntegrationID)
	if err != nil {
		return models.Integration{}, nil, nil, errors.Wrap(err, "fetch integration")
	}
	imp, err := a.Registry.OrderImporterFor(integ.Type)
	if err != nil {
		return models.Integration{}, nil, nil, err
	}
	cfg, err := a.Vault.Reveal(integ.Config)
	if err != nil {
		return models.Integration{}, nil, nil, errors.Wrap(err, "decrypt integration config")
	}
	return integ, imp, cfg, nil
}

func parseOptions(task models.Task) importer.Options {
	return importer.Options{
		Delimiter:  task.DelimiterRune(),
		HasHeader:  task.HasHeader,
		RecordPath: task.RecordPath(),
	}
}

// trimChunkResult caps per-chunk samples and errors so a chunk never
// ships more than the run will keep anyway.
func trimChunkResult(result *repository.ChunkResult) {
	if len(result.Samples) > models.MaxRunSamples {
		result.Samples = result.Samples[:models.MaxRunSamples]
	}
	if len(result.Errors) > models.MaxRunErrors {
		result.Errors = result.Errors[:models.MaxRunErrors]
	}
}

func parseInt(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer value %q", raw)
	}
	return n, nil
}

func parseBool(raw string, fallback bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	b, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return b
}
