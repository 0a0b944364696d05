package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// Content scanners. Base58 candidates are split into Bitcoin and Solana by
// the classifier, which checks checksums and decoded length.
var contentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`),
	regexp.MustCompile(`\bbc1[ac-hj-np-z02-9]{11,71}\b`),
	regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{25,44}\b`),
}

const (
	confidenceDirect   = 1.0
	confidenceLookup   = 0.8
	confidenceInferred = 0.6

	defaultLookupTimeout = 3 * time.Second
)

// AddressExtractor recovers blockchain addresses from a message
type AddressExtractor struct {
	classifier    AddressClassifier
	directory     ContactDirectory
	inferrer      HistoryInferrer
	lookupTimeout time.Duration
	logger        *logger.Logger
}

// NewAddressExtractor creates an extractor. A nil inferrer disables history
// inference; a non-positive timeout selects the default.
func NewAddressExtractor(
	classifier AddressClassifier,
	directory ContactDirectory,
	inferrer HistoryInferrer,
	lookupTimeout time.Duration,
	logger *logger.Logger,
) *AddressExtractor {
	if inferrer == nil {
		inferrer = NoopHistoryInferrer{}
	}
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &AddressExtractor{
		classifier:    classifier,
		directory:     directory,
		inferrer:      inferrer,
		lookupTimeout: lookupTimeout,
		logger:        logger.WithComponent("address-extractor"),
	}
}

// Extract never fails: malformed candidates and collaborator errors are
// logged and skipped.
func (x *AddressExtractor) Extract(ctx context.Context, msg *entity.Message) entity.ExtractionResult {
	result := entity.ExtractionResult{
		Addresses: []string{},
		Method:    entity.ExtractionInferred,
		Source:    "flutterbye_" + string(msg.Channel),
	}
	seen := make(map[string]struct{})
	add := func(addrs ...string) int {
		added := 0
		for _, a := range addrs {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			result.Addresses = append(result.Addresses, a)
			added++
		}
		return added
	}

	recipient := strings.TrimSpace(msg.Recipient)
	recipientIsAddress := false
	if recipient != "" {
		if _, err := x.classifier.Classify(recipient); err == nil {
			recipientIsAddress = true
			add(recipient)
			result.Method = entity.ExtractionDirect
			result.Confidence = confidenceDirect
		}
	}

	contentAddrs := x.scanContent(msg.Content)
	add(contentAddrs...)

	lookupFound := false
	if !recipientIsAddress && recipient != "" && x.directory != nil {
		if linked := x.lookup(ctx, recipient); len(linked) > 0 {
			add(linked...)
			lookupFound = true
			result.Method = entity.ExtractionLookup
			result.Confidence = confidenceLookup
		}
	}

	if result.Method != entity.ExtractionDirect && !lookupFound {
		inferred, err := x.inferrer.InferAddresses(ctx, msg)
		if err != nil {
			x.logger.Warn("History inference failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		inferred = x.validOnly(inferred, "inference")
		// Addresses found only in the body are treated as inferred as well
		if add(inferred...) > 0 || len(contentAddrs) > 0 {
			result.Method = entity.ExtractionInferred
			result.Confidence = confidenceInferred
		}
	}

	return result
}

// IsAddress reports whether s is a recognised address
func (x *AddressExtractor) IsAddress(s string) bool {
	_, err := x.classifier.Classify(strings.TrimSpace(s))
	return err == nil
}

func (x *AddressExtractor) scanContent(content string) []string {
	if content == "" {
		return nil
	}
	var candidates []string
	for _, re := range contentPatterns {
		candidates = append(candidates, re.FindAllString(content, -1)...)
	}
	return x.validOnly(candidates, "content")
}

func (x *AddressExtractor) lookup(ctx context.Context, contact string) []string {
	lookupCtx, cancel := context.WithTimeout(ctx, x.lookupTimeout)
	defer cancel()

	linked, err := x.directory.LookupWalletsByContact(lookupCtx, contact)
	if err != nil {
		x.logger.Warn("Contact lookup failed, continuing without linked wallets", zap.Error(err))
		return nil
	}
	return x.validOnly(linked, "lookup")
}

func (x *AddressExtractor) validOnly(candidates []string, origin string) []string {
	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, err := x.classifier.Classify(c); err != nil {
			x.logger.Warn("Skipping malformed address candidate",
				zap.String("origin", origin),
				zap.String("candidate", c),
				zap.Error(err))
			continue
		}
		valid = append(valid, c)
	}
	return valid
}
