package gbatis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gbatis "github.com/myfstd/gbatis"
	"github.com/myfstd/gbatis/builder"
	"github.com/myfstd/gbatis/driver"
	"github.com/myfstd/gbatis/driver/drivertest"
)

type Person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

const personMapper = `
<mapper namespace="person">
  <cache readOnly="true"/>

  <sql id="cols">id, name</sql>

  <select id="findById" resultType="Person">
    SELECT <include refid="cols"/> FROM person WHERE id = #{id}
  </select>

  <select id="search" resultType="Person">
    SELECT id, name FROM person
    <where>
      <if test="name != null">AND name = #{name}</if>
      <if test="minId != null">AND id &gt;= #{minId}</if>
    </where>
  </select>

  <select id="findIn" resultType="Person">
    SELECT id, name FROM person WHERE id IN
    <foreach collection="ids" item="i" open="(" close=")" separator=",">#{i}</foreach>
  </select>

  <insert id="create" useGeneratedKeys="true" keyProperty="id">
    INSERT INTO person (name) VALUES (#{name})
  </insert>

  <delete id="removeAll" flushCache="true">
    DELETE FROM person
  </delete>
</mapper>`

func compile(t *testing.T) *gbatis.Configuration {
	t.Helper()
	b := builder.NewConfigBuilder()
	b.Configuration().RegisterType(Person{})
	require.NoError(t, b.AddMapper("person.xml", []byte(personMapper)))
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

func factoryFor(cfg *gbatis.Configuration, conns ...*drivertest.Conn) *gbatis.SessionFactory {
	next := 0
	return gbatis.NewSessionFactory(cfg, func() (driver.Connection, error) {
		c := conns[next%len(conns)]
		next++
		return c, nil
	})
}

func TestSessionSelectOne(t *testing.T) {
	cfg := compile(t)
	conn := drivertest.NewConn().
		On("FROM person WHERE id = ?", []string{"id", "name"}, [][]any{{int64(7), "John"}})
	s, err := factoryFor(cfg, conn).OpenSession()
	require.NoError(t, err)
	defer s.Close()

	got, err := s.SelectOne("person.findById", map[string]any{"id": 7})
	require.NoError(t, err)
	p := got.(*Person)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "John", p.Name)

	// the include was substituted into the final text
	assert.Equal(t, "SELECT id, name FROM person WHERE id = ?", conn.Calls[0].SQL)
}

func TestSessionDynamicWhere(t *testing.T) {
	cfg := compile(t)
	conn := drivertest.NewConn().
		On("FROM person", []string{"id", "name"}, [][]any{})
	s, err := factoryFor(cfg, conn).OpenSession()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SelectList("person.search", map[string]any{"name": "x", "minId": nil})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM person WHERE name = ?", conn.Calls[0].SQL)
	assert.Equal(t, []any{"x"}, conn.Calls[0].Args)

	_, err = s.SelectList("person.search", map[string]any{"name": nil, "minId": nil})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM person", conn.Calls[1].SQL)
	assert.Empty(t, conn.Calls[1].Args)
}

func TestSessionForeach(t *testing.T) {
	cfg := compile(t)
	conn := drivertest.NewConn().
		On("IN (?,?,?)", []string{"id", "name"}, [][]any{})
	s, err := factoryFor(cfg, conn).OpenSession()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SelectList("person.findIn", map[string]any{"ids": []int{3, 4, 5}})
	require.NoError(t, err)
	require.Len(t, conn.Calls, 1)
	assert.Equal(t, "SELECT id, name FROM person WHERE id IN (?,?,?)", conn.Calls[0].SQL)
	assert.Equal(t, []any{int64(3), int64(4), int64(5)}, conn.Calls[0].Args)
}

func TestSessionInsertGeneratedKey(t *testing.T) {
	cfg := compile(t)
	conn := drivertest.NewConn().OnExec("INSERT INTO person", 42, 1)
	s, err := factoryFor(cfg, conn).OpenSession()
	require.NoError(t, err)
	defer s.Close()

	p := &Person{Name: "New"}
	rows, err := s.Insert("person.create", p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, int64(42), p.ID)
	require.NoError(t, s.Commit())
	assert.Equal(t, 1, conn.Commits)
}

// a second session sees cached results only after the first commits
func TestSharedCacheAcrossSessions(t *testing.T) {
	cfg := compile(t)
	connA := drivertest.NewConn().
		On("FROM person WHERE id = ?", []string{"id", "name"}, [][]any{{int64(1), "A"}})
	connB := drivertest.NewConn().
		On("FROM person WHERE id = ?", []string{"id", "name"}, [][]any{{int64(1), "A"}})
	connC := drivertest.NewConn()
	factory := factoryFor(cfg, connA, connB, connC)

	writer, err := factory.OpenSession()
	require.NoError(t, err)
	_, err = writer.SelectOne("person.findById", map[string]any{"id": 1})
	require.NoError(t, err)

	early, err := factory.OpenSession()
	require.NoError(t, err)
	_, err = early.SelectOne("person.findById", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Len(t, connB.Calls, 1) // miss: writer has not committed

	require.NoError(t, writer.Commit())

	late, err := factory.OpenSession()
	require.NoError(t, err)
	got, err := late.SelectOne("person.findById", map[string]any{"id": 1})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, connC.Calls) // served from the shared tier
}

func TestFlushStatementInvalidatesNamespace(t *testing.T) {
	cfg := compile(t)
	conn := drivertest.NewConn().
		On("FROM person WHERE id = ?", []string{"id", "name"}, [][]any{{int64(1), "A"}}).
		OnExec("DELETE FROM person", 0, 3)
	connAfter := drivertest.NewConn().
		On("FROM person WHERE id = ?", []string{"id", "name"}, [][]any{{int64(1), "A2"}})
	factory := factoryFor(cfg, conn, connAfter)

	s, err := factory.OpenSession()
	require.NoError(t, err)
	_, err = s.SelectOne("person.findById", map[string]any{"id": 1})
	require.NoError(t, err)
	_, err = s.Delete("person.removeAll", nil)
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	// the flushCache delete emptied the namespace cache on commit
	fresh, err := factory.OpenSession()
	require.NoError(t, err)
	got, err := fresh.SelectOne("person.findById", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "A2", got.(*Person).Name)
	assert.Len(t, connAfter.Calls, 1)
}

func TestSessionRequiresFrozenConfiguration(t *testing.T) {
	b := builder.NewConfigBuilder()
	_, err := gbatis.NewSessionFactory(b.Configuration(), nil).OpenSession()
	require.Error(t, err)
}
