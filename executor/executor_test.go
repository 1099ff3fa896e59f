package executor

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myfstd/gbatis/cache"
	"github.com/myfstd/gbatis/driver/drivertest"
	"github.com/myfstd/gbatis/dynsql"
	"github.com/myfstd/gbatis/mapping"
)

type address struct {
	ID   int64  `db:"id"`
	City string `db:"city"`
}

type person struct {
	ID        int64      `db:"id"`
	Name      string     `db:"name"`
	Addresses []*address `db:"addresses"`
}

func newCfg() *mapping.Configuration {
	cfg := mapping.NewConfiguration()
	cfg.RegisterType(person{})
	cfg.RegisterType(address{})
	return cfg
}

// selectStatement registers a SELECT whose body may carry #{} placeholders.
func selectStatement(t *testing.T, cfg *mapping.Configuration, id, body string, rm *mapping.ResultMap) *mapping.MappedStatement {
	t.Helper()
	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: body}, nil)
	require.NoError(t, err)
	ms := &mapping.MappedStatement{
		ID:         id,
		Kind:       mapping.CommandSelect,
		Source:     src,
		ResultMaps: []*mapping.ResultMap{rm},
		UseCache:   true,
		Cache:      nil,
	}
	ms.HasNestedResultMaps = rm.HasNestedResultMaps
	require.NoError(t, cfg.AddMappedStatement(ms))
	return ms
}

func personMap(id string) *mapping.ResultMap {
	rm := &mapping.ResultMap{
		ID:   id,
		Type: reflect.TypeOf(person{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
			{Property: "name", Column: "name"},
		},
	}
	rm.Index()
	return rm
}

func TestSimpleQueryMapsRows(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{{int64(7), "John"}})
	exec := NewSimple(cfg, conn)

	ms := selectStatement(t, cfg, "t.findById", "SELECT id, name FROM person WHERE id = #{id}", personMap("t.personMap"))
	list, err := exec.Query(ms, map[string]any{"id": 7}, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 1, spew.Sdump(list))

	p, ok := list[0].(*person)
	require.True(t, ok, spew.Sdump(list[0]))
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "John", p.Name)

	// the binder preserved declared order and 1-based ordinals
	require.Len(t, conn.Calls, 1)
	assert.Equal(t, "SELECT id, name FROM person WHERE id = ?", conn.Calls[0].SQL)
	assert.Equal(t, []any{int64(7)}, conn.Calls[0].Args)
}

func TestLocalCacheShortCircuits(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{{int64(1), "A"}}).
		OnExec("UPDATE person", 0, 1)
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.findAll", "SELECT id, name FROM person", personMap("t.pm1"))

	_, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	_, err = exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	assert.Len(t, conn.Calls, 1)

	// any update clears the first tier
	upd := &mapping.MappedStatement{ID: "t.touch", Kind: mapping.CommandUpdate, FlushCache: true}
	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "UPDATE person SET name = name"}, nil)
	require.NoError(t, err)
	upd.Source = src
	require.NoError(t, cfg.AddMappedStatement(upd))
	_, err = exec.Update(upd, nil)
	require.NoError(t, err)

	_, err = exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	assert.Len(t, conn.Calls, 3)
}

func TestStatementScopeEmptiesPerStatement(t *testing.T) {
	cfg := newCfg()
	cfg.Settings.LocalCacheScope = mapping.ScopeStatement
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{{int64(1), "A"}})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.findAll", "SELECT id, name FROM person", personMap("t.pm2"))

	_, _ = exec.Query(ms, nil, DefaultRowBounds())
	_, _ = exec.Query(ms, nil, DefaultRowBounds())
	assert.Len(t, conn.Calls, 2)
}

func TestRowBounds(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{
			{int64(1), "A"}, {int64(2), "B"}, {int64(3), "C"}, {int64(4), "D"},
		})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.findAll", "SELECT id, name FROM person", personMap("t.pm3"))

	list, err := exec.Query(ms, nil, RowBounds{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].(*person).ID)
	assert.Equal(t, int64(3), list[1].(*person).ID)
}

// rows (1,John,1,Addr1), (1,John,2,Addr2) collapse into one parent with a
// two-element collection
func TestNestedResultMapCollection(t *testing.T) {
	cfg := newCfg()

	child := &mapping.ResultMap{
		ID:   "t.addressMap",
		Type: reflect.TypeOf(address{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
			{Property: "city", Column: "city"},
		},
	}
	child.Index()
	require.NoError(t, cfg.AddResultMap(child))

	parent := &mapping.ResultMap{
		ID:   "t.personWithAddresses",
		Type: reflect.TypeOf(person{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "personId", ID: true},
			{Property: "name", Column: "name"},
			{Property: "addresses", NestedResultMap: "t.addressMap", ColumnPrefix: "addr_"},
		},
	}
	parent.Index()
	require.NoError(t, cfg.AddResultMap(parent))

	conn := drivertest.NewConn().
		On("FROM person", []string{"personId", "name", "addr_id", "addr_city"}, [][]any{
			{int64(1), "John", int64(1), "Addr1"},
			{int64(1), "John", int64(2), "Addr2"},
			{int64(2), "Jane", int64(3), "Addr3"},
		})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.findJoined", "SELECT * FROM person JOIN address", parent)

	list, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 2, spew.Sdump(list))

	john := list[0].(*person)
	assert.Equal(t, int64(1), john.ID)
	assert.Equal(t, "John", john.Name)
	require.Len(t, john.Addresses, 2)
	assert.Equal(t, "Addr1", john.Addresses[0].City)
	assert.Equal(t, "Addr2", john.Addresses[1].City)

	jane := list[1].(*person)
	assert.Equal(t, "Jane", jane.Name)
	require.Len(t, jane.Addresses, 1)
}

func TestAutomapFull(t *testing.T) {
	cfg := newCfg()
	cfg.Settings.AutoMappingBehavior = mapping.AutoMappingFull
	rm := &mapping.ResultMap{ID: "t.auto", Type: reflect.TypeOf(person{})}
	rm.Index()

	conn := drivertest.NewConn().
		On("FROM person", []string{"ID", "NAME"}, [][]any{{int64(5), "Kay"}})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.auto", "SELECT * FROM person", rm)

	list, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 1)
	p := list[0].(*person)
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, "Kay", p.Name)
}

func TestNullRowYieldsNil(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{{nil, nil}})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.nulls", "SELECT id, name FROM person", personMap("t.pm4"))

	list, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0])
}

func TestExecutionErrorCarriesContext(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().OnError("FROM person", errors.New("boom"))
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.fail", "SELECT id, name FROM person WHERE id = #{id}", personMap("t.pm5"))

	_, err := exec.Query(ms, map[string]any{"id": 9}, DefaultRowBounds())
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "t.fail", ee.StatementID)
	assert.Contains(t, ee.SQL, "WHERE id = ?")
	assert.Equal(t, []any{9}, ee.Values)
}

func TestGeneratedKeys(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().OnExec("INSERT INTO person", 42, 1)
	exec := NewSimple(cfg, conn)

	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "INSERT INTO person (name) VALUES (#{name})"}, nil)
	require.NoError(t, err)
	ms := &mapping.MappedStatement{
		ID: "t.insert", Kind: mapping.CommandInsert, Source: src,
		UseGeneratedKeys: true, KeyProperty: "id", FlushCache: true,
	}
	require.NoError(t, cfg.AddMappedStatement(ms))

	p := &person{Name: "New"}
	rows, err := exec.Update(ms, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, int64(42), p.ID)
}

func TestSelectKeyBefore(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().
		On("SELECT nextval", []string{"id"}, [][]any{{int64(77)}}).
		OnExec("INSERT INTO person", 0, 1)
	exec := NewSimple(cfg, conn)

	keyRM := &mapping.ResultMap{ID: "t.key-Inline", Type: reflect.TypeOf(int64(0))}
	keyRM.Index()
	keySrc, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "SELECT nextval('person_seq')"}, nil)
	require.NoError(t, err)
	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "INSERT INTO person (id, name) VALUES (#{id}, #{name})"}, nil)
	require.NoError(t, err)

	ms := &mapping.MappedStatement{
		ID: "t.insertSeq", Kind: mapping.CommandInsert, Source: src, FlushCache: true,
		SelectKey: &mapping.MappedStatement{
			ID: "t.insertSeq!selectKey", Kind: mapping.CommandSelect, Source: keySrc,
			ResultMaps: []*mapping.ResultMap{keyRM}, KeyProperty: "id",
		},
		SelectKeyBefore: true,
	}
	require.NoError(t, cfg.AddMappedStatement(ms))

	p := &person{Name: "Seq"}
	_, err = exec.Update(ms, p)
	require.NoError(t, err)
	assert.Equal(t, int64(77), p.ID)
	// the key query ran before the insert
	require.Len(t, conn.Calls, 2)
	assert.Contains(t, conn.Calls[0].SQL, "nextval")
	assert.Equal(t, []any{int64(77), "Seq"}, conn.Calls[1].Args)
}

func TestOutParameterRegistration(t *testing.T) {
	cfg := newCfg()
	conn := drivertest.NewConn().On("CALL compute", []string{"x"}, [][]any{})
	exec := NewSimple(cfg, conn)

	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "CALL compute(#{in1}, #{out1, mode=OUT, jdbcType=INTEGER})"}, nil)
	require.NoError(t, err)
	rm := &mapping.ResultMap{ID: "t.out-Inline", Type: reflect.TypeOf(map[string]any{})}
	rm.Index()
	ms := &mapping.MappedStatement{
		ID: "t.call", Kind: mapping.CommandSelect, Source: src,
		ResultMaps: []*mapping.ResultMap{rm},
	}
	require.NoError(t, cfg.AddMappedStatement(ms))

	_, err = exec.Query(ms, map[string]any{"in1": 5}, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, conn.Calls, 1)
	assert.Equal(t, []int{2}, conn.Calls[0].OutSlots)
	assert.Equal(t, []any{int64(5)}, conn.Calls[0].Args)
}

// cache coherence: a read after commit in one session observes another
// session's committed writes; a read before commit does not
func TestSecondTierCommitVisibility(t *testing.T) {
	cfg := newCfg()
	shared := cache.NewBuilder("t").ReadOnly(true).Build()

	rmA := personMap("t.pmA")
	connA := drivertest.NewConn().On("FROM person", []string{"id", "name"}, [][]any{{int64(1), "A"}})
	writer := NewCaching(cfg, NewSimple(cfg, connA))
	ms := selectStatement(t, cfg, "t.cached", "SELECT id, name FROM person", rmA)
	ms.Cache = shared

	connB := drivertest.NewConn().On("FROM person", []string{"id", "name"}, [][]any{{int64(1), "A"}})
	reader := NewCaching(cfg, NewSimple(cfg, connB))

	_, err := writer.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)

	// before the writer commits, the reader misses and hits its own driver
	_, err = reader.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	assert.Len(t, connB.Calls, 1)

	require.NoError(t, writer.Commit(true))

	reader2conn := drivertest.NewConn()
	reader2 := NewCaching(cfg, NewSimple(cfg, reader2conn))
	list, err := reader2.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, reader2conn.Calls)
}

func TestFlushCacheInvalidatesOnCommit(t *testing.T) {
	cfg := newCfg()
	shared := cache.NewBuilder("t2").ReadOnly(true).Build()

	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{{int64(1), "A"}}).
		OnExec("DELETE FROM person", 0, 1)
	sess := NewCaching(cfg, NewSimple(cfg, conn))

	ms := selectStatement(t, cfg, "t2.cached", "SELECT id, name FROM person", personMap("t2.pm"))
	ms.Cache = shared
	del := &mapping.MappedStatement{ID: "t2.del", Kind: mapping.CommandDelete, FlushCache: true, Cache: shared}
	src, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "DELETE FROM person"}, nil)
	require.NoError(t, err)
	del.Source = src
	require.NoError(t, cfg.AddMappedStatement(del))

	_, err = sess.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.NoError(t, sess.Commit(true))
	assert.NotNil(t, shared.Get(mustKey(t, cfg, ms)))

	_, err = sess.Update(del, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(true))
	assert.Nil(t, shared.Get(mustKey(t, cfg, ms)))
}

func mustKey(t *testing.T, cfg *mapping.Configuration, ms *mapping.MappedStatement) *cache.CacheKey {
	t.Helper()
	bs, err := ms.Source.BoundSQL(nil)
	require.NoError(t, err)
	key, err := CreateCacheKey(cfg, ms, bs, DefaultRowBounds())
	require.NoError(t, err)
	return key
}

type orderRec struct {
	ID    int64 `db:"id"`
	Items mapping.Lazy
}

func TestLazyNestedSelect(t *testing.T) {
	cfg := newCfg()
	cfg.RegisterType(orderRec{})
	conn := drivertest.NewConn().
		On("FROM orders", []string{"id"}, [][]any{{int64(10)}}).
		On("FROM items", []string{"name"}, [][]any{{"a"}, {"b"}})
	exec := NewSimple(cfg, conn)

	itemRM := &mapping.ResultMap{ID: "t.itemMap-Inline", Type: reflect.TypeOf("")}
	itemRM.Index()
	itemSrc, err := dynsql.NewRawSqlSource(cfg, &dynsql.StaticTextNode{Text: "SELECT name FROM items WHERE order_id = #{value}"}, nil)
	require.NoError(t, err)
	sub := &mapping.MappedStatement{
		ID: "t.itemsFor", Kind: mapping.CommandSelect, Source: itemSrc,
		ResultMaps: []*mapping.ResultMap{itemRM},
	}
	require.NoError(t, cfg.AddMappedStatement(sub))

	orderRM := &mapping.ResultMap{
		ID:   "t.orderMap",
		Type: reflect.TypeOf(orderRec{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
			{Property: "Items", Column: "id", NestedSelect: "t.itemsFor", LazyLoad: true},
		},
	}
	orderRM.Index()
	ms := selectStatement(t, cfg, "t.orders", "SELECT id FROM orders", orderRM)

	list, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 1)
	o := list[0].(*orderRec)
	require.NotNil(t, o.Items)
	// the sub-select has not run yet
	assert.Len(t, conn.Calls, 1)

	items, err := o.Items.Get()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, items)
	assert.Len(t, conn.Calls, 2)

	// one-shot: further access resolves from the cached value
	again, err := o.Items.Get()
	require.NoError(t, err)
	assert.Equal(t, items, again)
	assert.Len(t, conn.Calls, 2)
}
