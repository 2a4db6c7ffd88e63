package corpus

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/encoding/charmap"
)

// Archive field tags. Each value in the export is prefixed by its tag.
const (
	tagInsuranceNumber = "3119"
	tagSurname         = "3101"
	tagBirthDate       = "3103" // DDMMYYYY
)

// Window sizes for extracting the patient code around a hit. The code field
// precedes the insurance number within the same case record, so the window
// reaches further backwards than forwards.
const (
	insuranceWindowBefore = 2000
	insuranceWindowAfter  = 500
	pairMaxDistance       = 2000
	pairWindowPad         = 500
)

// codePattern matches the patient-code field (tag 3000, 7-digit value)
// including the 3-digit length prefix every archive line carries.
var codePattern = regexp.MustCompile(`\d{3}3000(\d{7})`)

const fileListKey = "corpus:files"

// Scanner resolves patient codes from the insurance archive.
type Scanner struct {
	src   Source
	log   *zap.Logger
	group singleflight.Group
	cache *gocache.Cache
}

// NewScanner creates a scanner over the given archive source.
func NewScanner(src Source, log *zap.Logger) *Scanner {
	return &Scanner{
		src:   src,
		log:   log,
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

type lookupResult struct {
	code  string
	found bool
}

// CodeByInsuranceNumber finds the strong patient code for an insurance
// number. The boolean reports whether the archive knows the number; the
// error is reserved for an unreadable archive.
func (s *Scanner) CodeByInsuranceNumber(ctx context.Context, insuranceNumber string) (string, bool, error) {
	key := "kvnr|" + insuranceNumber
	if v, ok := s.cache.Get(key); ok {
		r := v.(lookupResult)
		return r.code, r.found, nil
	}

	needle, err := encodeNeedle(tagInsuranceNumber + insuranceNumber)
	if err != nil {
		return "", false, nil
	}

	files, err := s.fileList(ctx)
	if err != nil {
		return "", false, err
	}

	for _, name := range files {
		content, err := s.src.Read(ctx, name)
		if err != nil {
			s.log.Debug("skipping unreadable archive file", zap.String("file", name), zap.Error(err))
			continue
		}

		pos := bytes.Index(content, needle)
		if pos < 0 {
			continue
		}

		window := sliceWindow(content, pos-insuranceWindowBefore, pos+insuranceWindowAfter)
		matches := codePattern.FindAllSubmatch(window, -1)
		if len(matches) == 0 {
			continue
		}
		// The case record closest to the hit is the last code before it.
		code := string(matches[len(matches)-1][1])
		s.cache.Set(key, lookupResult{code: code, found: true}, gocache.NoExpiration)
		return code, true, nil
	}

	s.cache.Set(key, lookupResult{}, gocache.NoExpiration)
	return "", false, nil
}

// CodeBySurnameAndBirthDate finds the strong patient code for a surname and
// a birth date in the archive's DDMMYYYY form. Both values must occur within
// the same case record, approximated by byte distance.
func (s *Scanner) CodeBySurnameAndBirthDate(ctx context.Context, surname, birthDateDDMMYYYY string) (string, bool, error) {
	key := "namedob|" + surname + "|" + birthDateDDMMYYYY
	if v, ok := s.cache.Get(key); ok {
		r := v.(lookupResult)
		return r.code, r.found, nil
	}

	surnameNeedle, err := encodeNeedle(tagSurname + surname)
	if err != nil {
		return "", false, nil
	}
	birthNeedle, err := encodeNeedle(tagBirthDate + birthDateDDMMYYYY)
	if err != nil {
		return "", false, nil
	}

	files, err := s.fileList(ctx)
	if err != nil {
		return "", false, err
	}

	for _, name := range files {
		content, err := s.src.Read(ctx, name)
		if err != nil {
			s.log.Debug("skipping unreadable archive file", zap.String("file", name), zap.Error(err))
			continue
		}

		surnamePos := bytes.Index(content, surnameNeedle)
		if surnamePos < 0 {
			continue
		}
		birthPos := bytes.Index(content, birthNeedle)
		if birthPos < 0 {
			continue
		}
		if abs(surnamePos-birthPos) >= pairMaxDistance {
			continue
		}

		lo := min(surnamePos, birthPos) - pairWindowPad
		hi := max(surnamePos, birthPos) + pairWindowPad
		window := sliceWindow(content, lo, hi)
		matches := codePattern.FindAllSubmatch(window, -1)
		if len(matches) == 0 {
			continue
		}
		code := string(matches[0][1])
		s.cache.Set(key, lookupResult{code: code, found: true}, gocache.NoExpiration)
		return code, true, nil
	}

	s.cache.Set(key, lookupResult{}, gocache.NoExpiration)
	return "", false, nil
}

// fileList loads the archive file list once per process. Concurrent first
// callers share a single List call.
func (s *Scanner) fileList(ctx context.Context) ([]string, error) {
	if v, ok := s.cache.Get(fileListKey); ok {
		return v.([]string), nil
	}

	v, err, _ := s.group.Do(fileListKey, func() (any, error) {
		names, err := s.src.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("corpus: load file list: %w", err)
		}
		s.log.Info("insurance archive loaded", zap.Int("files", len(names)))
		s.cache.Set(fileListKey, names, gocache.NoExpiration)
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// encodeNeedle converts a search needle to the archive's Windows-1252
// encoding. Values that cannot be represented cannot occur in the archive.
func encodeNeedle(s string) ([]byte, error) {
	return charmap.Windows1252.NewEncoder().Bytes([]byte(s))
}

func sliceWindow(content []byte, lo, hi int) []byte {
	if lo < 0 {
		lo = 0
	}
	if hi > len(content) {
		hi = len(content)
	}
	return content[lo:hi]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
