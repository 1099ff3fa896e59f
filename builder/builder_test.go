package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myfstd/gbatis/mapping"
)

type person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func build(t *testing.T, mappers ...string) *mapping.Configuration {
	t.Helper()
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	for i, m := range mappers {
		require.NoError(t, b.AddMapper(mapperName(i), []byte(m)))
	}
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

func mapperName(i int) string { return []string{"a.xml", "b.xml", "c.xml"}[i] }

func TestStaticStatementCompiles(t *testing.T) {
	cfg := build(t, `
<mapper namespace="person">
  <select id="findById" parameterType="map" resultType="person">
    SELECT id, name FROM person WHERE id = #{id}
  </select>
</mapper>`)
	ms, err := cfg.MappedStatement("person.findById")
	require.NoError(t, err)
	assert.Equal(t, mapping.CommandSelect, ms.Kind)
	assert.True(t, ms.UseCache)
	assert.False(t, ms.FlushCache)

	bs, err := ms.Source.BoundSQL(map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM person WHERE id = ?", bs.SQL)
	require.Len(t, bs.ParameterMappings, 1)
	assert.Equal(t, "id", bs.ParameterMappings[0].Property)
}

// a dot-less lookup resolves to the same statement as the qualified name
func TestNamespaceQualification(t *testing.T) {
	cfg := build(t, `
<mapper namespace="person">
  <select id="findById" resultType="person">SELECT * FROM person WHERE id = #{id}</select>
</mapper>`)
	byShort, err := cfg.MappedStatement("findById")
	require.NoError(t, err)
	byFull, err := cfg.MappedStatement("person.findById")
	require.NoError(t, err)
	assert.Same(t, byFull, byShort)
}

const includeMapper = `
<mapper namespace="person">
  <sql id="cols">${alias}.id, ${alias}.name</sql>
  <select id="findAll" resultType="person">
    SELECT <include refid="cols"><property name="alias" value="p"/></include> FROM person p
  </select>
  <select id="inlined" resultType="person">
    SELECT p.id, p.name FROM person p
  </select>
</mapper>`

func TestIncludeWithProperty(t *testing.T) {
	cfg := build(t, includeMapper)
	ms, err := cfg.MappedStatement("person.findAll")
	require.NoError(t, err)
	bs, err := ms.Source.BoundSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT p.id, p.name FROM person p", bs.SQL)

	// include substitution equals textual inlining
	inlined, err := cfg.MappedStatement("person.inlined")
	require.NoError(t, err)
	ibs, err := inlined.Source.BoundSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, ibs.SQL, bs.SQL)
}

func TestIncludeAcrossFiles(t *testing.T) {
	cfg := build(t, `
<mapper namespace="person">
  <select id="findAll" resultType="person">
    SELECT <include refid="shared.cols"/> FROM person
  </select>
</mapper>`, `
<mapper namespace="shared">
  <sql id="cols">id, name</sql>
</mapper>`)
	ms, err := cfg.MappedStatement("person.findAll")
	require.NoError(t, err)
	bs, err := ms.Source.BoundSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM person", bs.SQL)
}

func TestCyclicIncludeFails(t *testing.T) {
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <sql id="x"><include refid="y"/></sql>
  <sql id="y"><include refid="x"/></sql>
  <select id="findAll" resultType="person">SELECT <include refid="x"/></select>
</mapper>`)))
	_, err := b.Build()
	var cyc *CyclicIncludeError
	require.ErrorAs(t, err, &cyc)
}

func TestUnresolvedIncludeFails(t *testing.T) {
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <select id="findAll" resultType="person">SELECT <include refid="nowhere.cols"/></select>
</mapper>`)))
	_, err := b.Build()
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
}

const extendsMapper = `
<mapper namespace="person">
  <resultMap id="base" type="person">
    <id property="id" column="id"/>
    <result property="name" column="name"/>
  </resultMap>
  <resultMap id="renamed" type="person" extends="base">
    <result property="name" column="full_name"/>
  </resultMap>
  <select id="findAll" resultMap="renamed">SELECT * FROM person</select>
</mapper>`

func TestResultMapInheritance(t *testing.T) {
	cfg := build(t, extendsMapper)
	rm, err := cfg.ResultMap("person.renamed")
	require.NoError(t, err)

	// child override plus inherited id: parent's (name,name) survives since
	// the child tuple differs by column, per tuple-keyed override
	columns := map[string]string{}
	for _, m := range rm.Mappings {
		columns[m.Column] = m.Property
	}
	assert.Equal(t, "id", columns["id"])
	assert.Equal(t, "name", columns["full_name"])
	require.Len(t, rm.IDMappings, 1)
	assert.Equal(t, "id", rm.IDMappings[0].Column)
}

func TestExtendsForwardReference(t *testing.T) {
	// child declared before parent resolves in the fixed point
	cfg := build(t, `
<mapper namespace="person">
  <resultMap id="child" type="person" extends="base">
    <result property="name" column="full_name"/>
  </resultMap>
  <resultMap id="base" type="person">
    <id property="id" column="id"/>
  </resultMap>
  <select id="findAll" resultMap="child">SELECT * FROM person</select>
</mapper>`)
	rm, err := cfg.ResultMap("person.child")
	require.NoError(t, err)
	assert.Len(t, rm.IDMappings, 1)
}

func TestCyclicExtendsFails(t *testing.T) {
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <resultMap id="a" type="person" extends="b"><result property="name" column="n"/></resultMap>
  <resultMap id="b" type="person" extends="a"><result property="id" column="i"/></resultMap>
</mapper>`)))
	_, err := b.Build()
	var cyc *CyclicExtendsError
	require.ErrorAs(t, err, &cyc)
}

func TestCacheRefFixedPoint(t *testing.T) {
	cfg := build(t, `
<mapper namespace="person">
  <cache-ref namespace="shared"/>
  <select id="findAll" resultType="person">SELECT * FROM person</select>
</mapper>`, `
<mapper namespace="shared">
  <cache size="16"/>
</mapper>`)
	ms, err := cfg.MappedStatement("person.findAll")
	require.NoError(t, err)
	require.NotNil(t, ms.Cache)
	assert.Equal(t, "shared", ms.Cache.ID())
}

func TestUnresolvedCacheRefFails(t *testing.T) {
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <cache-ref namespace="nowhere"/>
  <select id="findAll" resultType="person">SELECT * FROM person</select>
</mapper>`)))
	_, err := b.Build()
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
}

func TestDynamicStatementDetection(t *testing.T) {
	cfg := build(t, `
<mapper namespace="person">
  <select id="search" resultType="person">
    SELECT * FROM person
    <where>
      <if test="name != null">AND name = #{name}</if>
    </where>
  </select>
</mapper>`)
	ms, err := cfg.MappedStatement("person.search")
	require.NoError(t, err)

	bs, err := ms.Source.BoundSQL(map[string]any{"name": "John"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM person WHERE name = ?", bs.SQL)

	bs, err = ms.Source.BoundSQL(map[string]any{"name": nil})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM person", bs.SQL)
}

func TestSelectRequiresResultShape(t *testing.T) {
	b := NewConfigBuilder()
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <select id="findAll">SELECT * FROM person</select>
</mapper>`)))
	_, err := b.Build()
	require.Error(t, err)
}

func TestUnknownSettingFails(t *testing.T) {
	s := mapping.DefaultSettings()
	require.Error(t, applySetting(&s, "unknownOption", "true"))
	require.NoError(t, applySetting(&s, "mapUnderscoreToCamelCase", "true"))
	assert.True(t, s.MapUnderscoreToCamelCase)
}

func TestYAMLSettings(t *testing.T) {
	b := NewConfigBuilder()
	require.NoError(t, b.LoadConfigYAML([]byte(`
settings:
  cacheEnabled: "false"
  localCacheScope: STATEMENT
environment: prod
`)))
	assert.False(t, b.Configuration().Settings.CacheEnabled)
	assert.Equal(t, mapping.ScopeStatement, b.Configuration().Settings.LocalCacheScope)
	assert.Equal(t, "prod", b.Configuration().Environment)

	require.Error(t, b.LoadConfigYAML([]byte("settings:\n  nope: \"1\"\n")))
}

func TestDatabaseIDSelection(t *testing.T) {
	b := NewConfigBuilder()
	b.Configuration().RegisterType(person{})
	b.Configuration().DatabaseID = "mysql"
	require.NoError(t, b.AddMapper("a.xml", []byte(`
<mapper namespace="person">
  <select id="now" resultType="string" databaseId="mysql">SELECT NOW()</select>
  <select id="now" resultType="string" databaseId="oracle">SELECT SYSDATE FROM DUAL</select>
</mapper>`)))
	cfg, err := b.Build()
	require.NoError(t, err)
	ms, err := cfg.MappedStatement("person.now")
	require.NoError(t, err)
	bs, err := ms.Source.BoundSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT NOW()", bs.SQL)
}
