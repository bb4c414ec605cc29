package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kioku/data/memory.db"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 50
	}
	if cfg.Search.VectorWeight == 0 && cfg.Search.TextWeight == 0 {
		cfg.Search.VectorWeight = 0.7
		cfg.Search.TextWeight = 0.3
	}
	if cfg.Trust.HalfLifeDays == 0 {
		cfg.Trust.HalfLifeDays = 180
	}
	if cfg.Trust.ContradictionPenalty == 0 {
		cfg.Trust.ContradictionPenalty = 0.85
	}
	if cfg.Trust.DefaultTrust == 0 {
		cfg.Trust.DefaultTrust = 0.5
	}
	if cfg.Trust.TrustWeight == 0 {
		cfg.Trust.TrustWeight = 0.3
	}
}
