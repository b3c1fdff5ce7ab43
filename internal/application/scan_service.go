package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
	"adlign-personalization-layer/internal/scanner"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSource resolves a shop's decrypted Admin API token
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// ScanPolicy controls which assets a scan reads and how it paces itself
type ScanPolicy struct {
	// LabelPrefix is prepended to the theme name to label the mapping.
	LabelPrefix string
	// KeyFilter keeps assets whose key contains any of these; empty keeps all.
	KeyFilter []string
	// MaxFiles caps the number of assets read; 0 means no cap.
	MaxFiles int
	// MaxAttempts is the total number of tries per file on a rate limit.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number.
	RetryDelay time.Duration
	PauseEvery int
	Pause      time.Duration
}

var quickScanKeywords = []string{
	"product", "collection", "cart", "media", "gallery", "reviews", "badge",
	"variant", "price", "title", "description", "featured", "recommendations",
}

var textAssetSuffixes = []string{".liquid", ".json", ".html"}

// QuickScanPolicy reads at most 15 product-related files
func QuickScanPolicy() ScanPolicy {
	return ScanPolicy{
		LabelPrefix: "scan_rapide_",
		KeyFilter:   quickScanKeywords,
		MaxFiles:    15,
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		PauseEvery:  5,
		Pause:       time.Second,
	}
}

// FullScanPolicy reads every text asset of the theme
func FullScanPolicy() ScanPolicy {
	return ScanPolicy{
		LabelPrefix: "scan_complet_",
		MaxAttempts: 3,
		RetryDelay:  3 * time.Second,
		PauseEvery:  3,
		Pause:       2 * time.Second,
	}
}

// selects reports whether the policy reads the asset with key
func (p ScanPolicy) selects(key string) bool {
	if !isTextAsset(key) {
		return false
	}
	if len(p.KeyFilter) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, kw := range p.KeyFilter {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isTextAsset(key string) bool {
	for _, suffix := range textAssetSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// ScanService fetches the main theme, scans it and stores the mapping
type ScanService struct {
	tokens   TokenSource
	client   ports.ShopifyClient
	scanner  *scanner.Scanner
	enhancer *AIEnhancer
	mappings ports.MappingRepository
	quick    ScanPolicy
	full     ScanPolicy
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewScanService creates a scan service with the default policies
func NewScanService(
	tokens TokenSource,
	client ports.ShopifyClient,
	scn *scanner.Scanner,
	enhancer *AIEnhancer,
	mappings ports.MappingRepository,
	logger zerolog.Logger,
) *ScanService {
	return &ScanService{
		tokens:   tokens,
		client:   client,
		scanner:  scn,
		enhancer: enhancer,
		mappings: mappings,
		quick:    QuickScanPolicy(),
		full:     FullScanPolicy(),
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithPolicies overrides the quick and full scan policies
func (s *ScanService) WithPolicies(quick, full ScanPolicy) *ScanService {
	s.quick = quick
	s.full = full
	return s
}

// WithSleep replaces the delay function used for retries and pacing
func (s *ScanService) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *ScanService {
	s.sleep = sleep
	return s
}

func (s *ScanService) policy(t domain.ScanType) (ScanPolicy, error) {
	switch t {
	case domain.ScanQuick:
		return s.quick, nil
	case domain.ScanFull:
		return s.full, nil
	}
	return ScanPolicy{}, fmt.Errorf("%w: unknown scan type %q", domain.ErrInvalidInput, t)
}

// MainTheme returns the published theme of shop
func (s *ScanService) MainTheme(ctx context.Context, shop, token string) (domain.Theme, error) {
	return mainTheme(ctx, s.client, shop, token)
}

func mainTheme(ctx context.Context, client ports.ShopifyClient, shop, token string) (domain.Theme, error) {
	themes, err := client.ListThemes(ctx, shop, token)
	if err != nil {
		return domain.Theme{}, fmt.Errorf("failed to list themes: %w", err)
	}
	for _, t := range themes {
		if t.Role == "main" {
			return t, nil
		}
	}
	return domain.Theme{}, domain.ErrNoMainTheme
}

// Fetch reads and scans the main theme according to the scan type's policy.
// Files that cannot be read are skipped; what was read is kept.
func (s *ScanService) Fetch(ctx context.Context, shop string, scanType domain.ScanType) (*domain.ScanResult, error) {
	policy, err := s.policy(scanType)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	theme, err := s.MainTheme(ctx, shop, token)
	if err != nil {
		return nil, err
	}

	assets, err := s.client.ListAssets(ctx, shop, token, theme.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list theme assets: %w", err)
	}

	var keys []string
	for _, a := range assets {
		if policy.selects(a.Key) {
			keys = append(keys, a.Key)
		}
	}
	if policy.MaxFiles > 0 && len(keys) > policy.MaxFiles {
		keys = keys[:policy.MaxFiles]
	}

	logger := s.logger.With().
		Str("shop", shop).
		Str("theme", theme.Name).
		Str("scan_type", string(scanType)).
		Logger()
	logger.Info().Int("total_assets", len(assets)).Int("selected", len(keys)).Msg("Starting theme scan")

	result := &domain.ScanResult{
		Theme:      theme,
		ScanType:   scanType,
		TotalFiles: len(keys),
	}

	for i, key := range keys {
		content, err := s.download(ctx, shop, token, theme.ID, key, policy, logger)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn().Err(err).Str("file", key).Msg("Skipping theme file")
			result.FilesSkipped = append(result.FilesSkipped, key)
		} else {
			result.FilesAnalyzed = append(result.FilesAnalyzed, key)
			result.Files = append(result.Files, domain.ScannedFile{Key: key, Content: content})
		}

		if policy.PauseEvery > 0 && (i+1)%policy.PauseEvery == 0 && i+1 < len(keys) {
			if err := s.sleep(ctx, policy.Pause); err != nil {
				return nil, err
			}
		}
	}

	result.Elements = s.scanner.ScanFiles(result.Files)
	logger.Info().
		Int("files_analyzed", len(result.FilesAnalyzed)).
		Int("files_skipped", len(result.FilesSkipped)).
		Int("elements", len(result.Elements)).
		Msg("Theme scan finished")
	return result, nil
}

// download retries rate-limited reads with an incremental delay. Other
// failures are returned at once.
func (s *ScanService) download(ctx context.Context, shop, token string, themeID uint64, key string, policy ScanPolicy, logger zerolog.Logger) (string, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var asset *domain.ThemeAsset
		asset, err = s.client.GetAsset(ctx, shop, token, themeID, key)
		if err == nil {
			return asset.Value, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) || attempt == attempts {
			return "", err
		}
		delay := policy.RetryDelay * time.Duration(attempt)
		logger.Debug().Str("file", key).Int("attempt", attempt).Dur("delay", delay).Msg("Rate limited, retrying file")
		if serr := s.sleep(ctx, delay); serr != nil {
			return "", serr
		}
	}
	return "", err
}

// Analyze scans, enhances and stores a mapping for shop
func (s *ScanService) Analyze(ctx context.Context, shop string, scanType domain.ScanType) (*domain.MappingRecord, error) {
	policy, err := s.policy(scanType)
	if err != nil {
		return nil, err
	}
	result, err := s.Fetch(ctx, shop, scanType)
	if err != nil {
		return nil, err
	}

	elements, enhanced := s.enhancer.Enhance(ctx, result)

	now := s.now()
	record := &domain.MappingRecord{
		ID:            "mapping_" + uuid.NewString(),
		ShopDomain:    shop,
		Label:         policy.LabelPrefix + result.Theme.Name,
		ThemeID:       result.Theme.ID,
		ThemeName:     result.Theme.Name,
		FilesAnalyzed: result.FilesAnalyzed,
		TotalFiles:    result.TotalFiles,
		ScanType:      scanType,
		AIEnhanced:    enhanced,
		Mapping:       elements,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.mappings.SaveMapping(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}

	s.logger.Info().
		Str("shop", shop).
		Str("mapping_id", record.ID).
		Bool("ai_enhanced", enhanced).
		Int("elements", len(elements)).
		Msg("Mapping saved")
	return record, nil
}

// ThemeFilesReport is a debug view of the main theme's assets
type ThemeFilesReport struct {
	Theme         domain.Theme `json:"theme"`
	TotalFiles    int          `json:"total_files"`
	ProductFiles  []string     `json:"product_files"`
	TemplateFiles []string     `json:"template_files"`
	SectionFiles  []string     `json:"section_files"`
	FirstFiles    []string     `json:"first_files"`
}

// ThemeFiles lists the main theme's asset keys grouped for debugging
func (s *ScanService) ThemeFiles(ctx context.Context, shop string) (*ThemeFilesReport, error) {
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	theme, err := s.MainTheme(ctx, shop, token)
	if err != nil {
		return nil, err
	}
	assets, err := s.client.ListAssets(ctx, shop, token, theme.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list theme assets: %w", err)
	}

	keys := make([]string, 0, len(assets))
	for _, a := range assets {
		keys = append(keys, a.Key)
	}
	sort.Strings(keys)

	report := &ThemeFilesReport{
		Theme:         theme,
		TotalFiles:    len(keys),
		ProductFiles:  []string{},
		TemplateFiles: []string{},
		SectionFiles:  []string{},
	}
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "product") {
			report.ProductFiles = append(report.ProductFiles, k)
		}
		switch {
		case strings.HasPrefix(k, "templates/"):
			report.TemplateFiles = append(report.TemplateFiles, k)
		case strings.HasPrefix(k, "sections/"):
			report.SectionFiles = append(report.SectionFiles, k)
		}
	}
	report.FirstFiles = keys[:min(20, len(keys))]
	return report, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
