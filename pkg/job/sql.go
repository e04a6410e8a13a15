package job

import (
	"context"
	"sort"
	"sync"

	"github.com/lsst/qserv-replica/api/proto"
	"golang.org/x/sync/errgroup"
)

// SqlResult reports one worker's outcome for an Sql job; Err is the
// error of the last failed batch sent to that worker, or nil.
type SqlResult struct {
	Worker string
	Err    error
}

// SqlJob broadcasts one Sql* operation to the selected worker set,
// batching table-scoped operations so no worker receives more than its
// declared processing-thread count at once.
type SqlJob struct {
	*Base
	deps     Deps
	database string
	op       SqlOp
	tables   []string
	ignoreNonPartitioned bool
}

// SqlOp names one operation in the Sql* family; it
// serializes directly into proto.SqlQueryRequest.Query.
type SqlOp string

const (
	OpCreateDb             SqlOp = "CreateDb"
	OpDeleteDb             SqlOp = "DeleteDb"
	OpEnableDb             SqlOp = "EnableDb"
	OpDisableDb            SqlOp = "DisableDb"
	OpGrantAccess          SqlOp = "GrantAccess"
	OpCreateTables         SqlOp = "CreateTables"
	OpDeleteTable          SqlOp = "DeleteTable"
	OpRemoveTablePartitions SqlOp = "RemoveTablePartitions"
	OpRowStats             SqlOp = "RowStats"
)

func NewSqlJob(deps Deps, family, database string, op SqlOp, tables []string, ignoreNonPartitioned bool) *SqlJob {
	return &SqlJob{
		Base:                 NewBase("SqlJob:"+string(op), family),
		deps:                 deps,
		database:             database,
		op:                   op,
		tables:               tables,
		ignoreNonPartitioned: ignoreNonPartitioned,
	}
}

// PhysicalTables expands a partitioned table's logical name into every
// physical table present on a worker holding the listed chunks, per
// the prototype, <name>_<chunk> and <name>FullOverlap_<chunk>
// for each chunk, plus the dummy-chunk pair.
func PhysicalTables(logicalName string, chunks []int32, dummy int32) []string {
	out := []string{logicalName}
	all := append(append([]int32(nil), chunks...), dummy)
	sort.Slice(all, func(i, k int) bool { return all[i] < all[k] })
	for _, c := range all {
		out = append(out, logicalName+"_"+itoa(c), logicalName+"FullOverlap_"+itoa(c))
	}
	return out
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// batch splits tables into groups no larger than maxPerWorker.
func batch(tables []string, maxPerWorker int) [][]string {
	if maxPerWorker <= 0 {
		maxPerWorker = 1
	}
	var out [][]string
	for len(tables) > 0 {
		n := maxPerWorker
		if n > len(tables) {
			n = len(tables)
		}
		out = append(out, tables[:n])
		tables = tables[n:]
	}
	return out
}

func (j *SqlJob) Run(ctx context.Context) ([]SqlResult, error) {
	runCtx := j.Start(ctx)

	var workers []string
	if j.Family == "" {
		all := j.deps.Store.AllWorkers()
		for _, w := range all {
			workers = append(workers, w.Name)
		}
	} else {
		workers = append(j.deps.Store.Workers(true, false), j.deps.Store.Workers(true, true)...)
	}

	maxPerWorker := j.deps.Store.WorkerNumProcessingThreads()
	batches := batch(j.tables, maxPerWorker)

	var mu sync.Mutex
	var results []SqlResult
	j.SetProgress(0, len(workers)*max(len(batches), 1))
	var completed int

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxInFlight(len(workers)))
	for _, w := range workers {
		w := w
		g.Go(func() error {
			conn, err := j.deps.Dialer.Dial(gctx, w)
			if err != nil {
				mu.Lock()
				results = append(results, SqlResult{Worker: w, Err: err})
				mu.Unlock()
				return nil
			}
			var lastErr error
			if len(batches) == 0 {
				_, lastErr = conn.SqlQuery(gctx, &proto.SqlQueryRequest{Database: j.database, Query: string(j.op)})
			}
			for _, tbls := range batches {
				_, err := conn.SqlQuery(gctx, &proto.SqlQueryRequest{
					Database: j.database,
					Query:    string(j.op) + ":" + joinTables(tbls),
				})
				if err != nil {
					lastErr = err
				}
			}
			mu.Lock()
			results = append(results, SqlResult{Worker: w, Err: lastErr})
			completed += max(len(batches), 1)
			j.SetProgress(completed, len(workers)*max(len(batches), 1))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.Finish(ExtCancelled, err)
		return nil, err
	}
	j.Finish(ExtSuccess, nil)
	return results, nil
}

func joinTables(tables []string) string {
	out := ""
	for i, t := range tables {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
