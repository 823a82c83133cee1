package tools

import (
	"github.com/user/ansari/internal/config"
	"github.com/user/ansari/internal/toolcache"
)

// NewDefaultRegistry builds the quran, hadith and mawsuah tools from cfg.
// When caching is enabled all three share one result cache. A nil client
// means one bounded by DefaultRequestTimeout.
func NewDefaultRegistry(cfg config.ToolsConfig, client HTTPDoer) *Registry {
	if client == nil {
		client = NewHTTPClient(DefaultRequestTimeout)
	}
	all := []Tool{
		NewSearchQuran(client, cfg.KalematAPIKey, cfg.KalematBaseURL, cfg.NumResults),
		NewSearchHadith(client, cfg.KalematAPIKey, cfg.KalematBaseURL, cfg.NumResults),
		NewSearchMawsuah(client, cfg.VectaraAuthToken, cfg.VectaraCustomerID, cfg.VectaraCorpusID, cfg.VectaraBaseURL, cfg.NumResults),
	}

	if cfg.CacheEnabled {
		cache := toolcache.NewLRUCache(cfg.CacheMaxSize)
		for i, t := range all {
			all[i] = NewCachedTool(t, cache, cfg.GetCacheTTL())
		}
	}

	return NewRegistry(all...)
}
