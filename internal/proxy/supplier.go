package proxy

import "sync"

// Supplier hands out the outbound proxy URL for upstream requests.
type Supplier interface {
	Get() string
}

type staticSupplier struct {
	mutex sync.Mutex
	url   string
}

// NewStaticSupplier returns a Supplier that always yields the configured
// proxy URL. An empty URL means direct connections.
func NewStaticSupplier(url string) Supplier {
	return &staticSupplier{url: url}
}

func (p *staticSupplier) Get() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.url
}
