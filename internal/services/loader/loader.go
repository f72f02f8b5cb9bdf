// Package loader registers the HTTP services and the interceptors they can
// opt into. Import it for side effects before building services.
package loader

import (
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/services/api"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/services/ui"
)
