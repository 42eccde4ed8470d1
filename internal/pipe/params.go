package pipe

// Params carries the page window and hints for one extraction run.
type Params struct {
	// StartPageID is the first page processed (inclusive).
	StartPageID int
	// EndPageID is the page after the last one processed (exclusive); nil means
	// through the document's last page.
	EndPageID *int
	DebugMode bool
	// Lang is forwarded only when non-nil.
	Lang *string
}

// Option mutates Params.
type Option func(*Params)

func WithStartPage(id int) Option {
	return func(p *Params) { p.StartPageID = id }
}

func WithEndPage(id int) Option {
	return func(p *Params) { p.EndPageID = &id }
}

func WithDebug(on bool) Option {
	return func(p *Params) { p.DebugMode = on }
}

// WithLang sets the language hint. Passing nil leaves it absent.
func WithLang(lang *string) Option {
	return func(p *Params) { p.Lang = lang }
}

// NewParams applies opts over the defaults (start 0, end unset, no debug, no lang).
func NewParams(opts ...Option) Params {
	var p Params
	for _, o := range opts {
		if o != nil {
			o(&p)
		}
	}
	return p
}

// Window resolves the half-open page range [start, end) for a document of
// pageCount pages. No emptiness check is made; start >= end yields no pages.
func (p Params) Window(pageCount int) (start, end int) {
	start = p.StartPageID
	end = pageCount
	if p.EndPageID != nil {
		end = *p.EndPageID
	}
	if start < 0 {
		start = 0
	}
	if end > pageCount {
		end = pageCount
	}
	return start, end
}

// Options converts p back into the equivalent option list.
func (p Params) Options() []Option {
	opts := []Option{WithStartPage(p.StartPageID), WithDebug(p.DebugMode), WithLang(p.Lang)}
	if p.EndPageID != nil {
		opts = append(opts, WithEndPage(*p.EndPageID))
	}
	return opts
}
