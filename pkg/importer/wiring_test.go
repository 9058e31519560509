package importer

import (
	"github.com/Ramsey-B/sedum/internal/repositories/canonical"
	"github.com/Ramsey-B/sedum/internal/repositories/column"
	"github.com/Ramsey-B/sedum/internal/repositories/importfile"
	"github.com/Ramsey-B/sedum/internal/repositories/importrecord"
	"github.com/Ramsey-B/sedum/internal/repositories/snapshot"
	"github.com/Ramsey-B/sedum/pkg/matching"
	"github.com/Ramsey-B/sedum/pkg/queue"
)

// The production repositories must keep satisfying the stage
// interfaces.
var (
	_ FileStore      = (*importfile.Repository)(nil)
	_ RecordStore    = (*importrecord.Repository)(nil)
	_ SnapshotStore  = (*snapshot.Repository)(nil)
	_ CanonicalStore = (*canonical.Repository)(nil)
	_ ColumnStore    = (*column.Repository)(nil)
	_ Matcher        = (*matching.Service)(nil)
	_ JobQueue       = (*queue.Queue)(nil)
)
