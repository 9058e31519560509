package matching

import (
	"github.com/Ramsey-B/sedum/internal/repositories/importfile"
	"github.com/Ramsey-B/sedum/internal/repositories/snapshot"
	"github.com/Ramsey-B/sedum/pkg/merging"
	"github.com/Ramsey-B/sedum/pkg/redis"
)

var (
	_ SnapshotStore = (*snapshot.Repository)(nil)
	_ ImportStore   = (*importfile.Repository)(nil)
	_ Merger        = (*merging.Engine)(nil)
	_ Locker        = (*redis.ScopedLocker)(nil)
)
