// Package writer persists order book snapshots to S3 as parquet files for
// offline model calibration.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "tradesim/config"
	"tradesim/internal/channel"
	"tradesim/logger"
	"tradesim/models"
)

// SnapshotRow is one flattened price level as stored in parquet.
type SnapshotRow struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	Level     int32   `parquet:"name=level, type=INT32"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// Recorder buffers snapshots per exchange and symbol and periodically
// flushes them to S3 as parquet files partitioned by exchange, symbol and
// date.
type Recorder struct {
	config      *appconfig.Config
	channels    *channel.Channels
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]SnapshotRow
	flushTicker *time.Ticker
}

// NewRecorder builds a recorder wired to the recorder channel. It fails when
// AWS credentials cannot be resolved.
func NewRecorder(cfg *appconfig.Config, ch *channel.Channels) (*Recorder, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Recorder.S3.Region),
	}
	if cfg.Recorder.S3.AccessKeyID != "" && cfg.Recorder.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Recorder.S3.AccessKeyID,
				cfg.Recorder.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("recorder").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Recorder.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Recorder.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Recorder.S3.PathStyle
	})

	log.WithComponent("recorder").WithFields(logger.Fields{
		"bucket":     cfg.Recorder.S3.Bucket,
		"region":     cfg.Recorder.S3.Region,
		"endpoint":   cfg.Recorder.S3.Endpoint,
		"path_style": cfg.Recorder.S3.PathStyle,
	}).Info("snapshot recorder initialized")

	return &Recorder{
		config:   cfg,
		channels: ch,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
	}, nil
}

// Start launches the consume and flush workers.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.buffer = make(map[string][]SnapshotRow)
	r.flushTicker = time.NewTicker(r.config.Recorder.FlushInterval)
	r.mu.Unlock()

	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"operation": "Start"})
	log.Info("starting snapshot recorder")

	r.wg.Add(2)
	go r.consumeWorker()
	go r.flushWorker()

	log.Info("snapshot recorder started successfully")
	return nil
}

// Stop waits for the workers, flushing remaining buffers on the way out.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	r.log.WithComponent("recorder").Info("stopping snapshot recorder")
	r.wg.Wait()
	r.log.WithComponent("recorder").Info("snapshot recorder stopped")
}

func (r *Recorder) consumeWorker() {
	defer r.wg.Done()
	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"worker": "consume"})

	for {
		select {
		case <-r.ctx.Done():
			log.Info("consume worker stopped due to context cancellation")
			return
		case snap, ok := <-r.channels.Record:
			if !ok {
				log.Info("recorder channel closed, worker stopping")
				return
			}
			r.addSnapshot(snap)
		}
	}
}

func (r *Recorder) flushWorker() {
	defer r.wg.Done()
	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-r.ctx.Done():
			r.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-r.flushTicker.C:
			r.flushBuffers("interval")
		}
	}
}

// addSnapshot flattens the top levels of both sides into rows and appends
// them to the per-symbol buffer.
func (r *Recorder) addSnapshot(snap models.OrderBookSnapshot) {
	rows := flattenSnapshot(snap, r.config.Recorder.MaxLevels)
	if len(rows) == 0 {
		return
	}
	key := r.bufferKey(snap.Exchange, snap.Symbol)
	r.mu.Lock()
	r.buffer[key] = append(r.buffer[key], rows...)
	r.mu.Unlock()
}

func (r *Recorder) bufferKey(exchange, symbol string) string {
	return fmt.Sprintf("%s|%s", exchange, symbol)
}

// flattenSnapshot turns a snapshot into per-level rows, capped at maxLevels
// per side. Levels are numbered from 1 at the top of the book.
func flattenSnapshot(snap models.OrderBookSnapshot, maxLevels int) []SnapshotRow {
	if maxLevels <= 0 {
		maxLevels = 10
	}
	rows := make([]SnapshotRow, 0, 2*maxLevels)
	appendSide := func(levels []models.PriceLevel, side string) {
		for i, lvl := range levels {
			if i >= maxLevels {
				break
			}
			if lvl.Price <= 0 || lvl.Quantity <= 0 {
				continue
			}
			rows = append(rows, SnapshotRow{
				Exchange:  snap.Exchange,
				Symbol:    snap.Symbol,
				Timestamp: snap.Timestamp,
				Side:      side,
				Price:     lvl.Price,
				Quantity:  lvl.Quantity,
				Level:     int32(i + 1),
			})
		}
	}
	appendSide(snap.Asks, "ask")
	appendSide(snap.Bids, "bid")
	return rows
}

func (r *Recorder) flushBuffers(reason string) {
	r.mu.Lock()
	buffers := r.buffer
	r.buffer = make(map[string][]SnapshotRow)
	r.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for key, rows := range buffers {
		if len(rows) == 0 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		r.uploadRows(parts[0], parts[1], rows)
	}
}

func (r *Recorder) uploadRows(exchange, symbol string, rows []SnapshotRow) {
	now := time.Now().UTC()
	log := r.log.WithComponent("recorder").WithFields(logger.Fields{
		"exchange":     exchange,
		"symbol":       symbol,
		"record_count": len(rows),
		"operation":    "upload_rows",
	})

	key := r.objectKey(exchange, symbol, now)
	log = log.WithFields(logger.Fields{"s3_key": key})

	data, size, err := r.createParquetFile(rows)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := r.upload(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": r.config.Recorder.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{"file_size": size}).Info("rows flushed to S3")
}

// objectKey builds the partitioned S3 key for one flush.
func (r *Recorder) objectKey(exchange, symbol string, ts time.Time) string {
	parts := []string{}
	if prefix := strings.Trim(r.config.Recorder.S3.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		fmt.Sprintf("exchange=%s", exchange),
		fmt.Sprintf("symbol=%s", symbol),
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
	)
	filename := fmt.Sprintf("%s_books_%s_%s_%s.parquet",
		exchange, symbol, ts.Format("20060102150405"), uuid.New().String()[:8])
	key := filepath.Join(append(parts, filename)...)
	return filepath.ToSlash(key)
}

func (r *Recorder) createParquetFile(rows []SnapshotRow) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(SnapshotRow), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch r.config.Recorder.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

func (r *Recorder) upload(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := r.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.Recorder.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}
