package reflectx

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	ID   int64  `db:"id"`
	City string `db:"city"`
}

type person struct {
	ID        int64      `db:"id"`
	Name      string     `db:"name"`
	Home      *address   `db:"home"`
	Addresses []*address `db:"addresses"`
	Tags      map[string]string
	Active    bool
}

func testMapper() *Mapper { return NewMapper("db") }

func TestTypeMapNames(t *testing.T) {
	m := testMapper()
	tm := m.TypeMap(reflect.TypeOf(person{}))

	fi, err := tm.GetByName("name")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, "Name", fi.Field.Name)

	// untagged fields keep their Go names, matched case-insensitively
	fi, err = tm.GetByName("active")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, "Active", fi.Field.Name)
}

func TestElemTypeResolution(t *testing.T) {
	m := testMapper()
	tm := m.TypeMap(reflect.TypeOf(person{}))
	fi, err := tm.GetByName("addresses")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, reflect.TypeOf(address{}), fi.ElemType())
}

func TestAmbiguousAccessor(t *testing.T) {
	type clash struct {
		UserID int64
		UserId int64
	}
	m := testMapper()
	tm := m.TypeMap(reflect.TypeOf(clash{}))
	_, err := tm.GetByName("userid")
	var amb *AmbiguousAccessorError
	require.ErrorAs(t, err, &amb)
}

func TestEmbeddedPromotionAndShadowing(t *testing.T) {
	type audit struct {
		Created string `db:"created"`
		Name    string `db:"name"`
	}
	type record struct {
		audit
		Name string `db:"name"`
	}
	tm := testMapper().TypeMap(reflect.TypeOf(record{}))

	// embedded fields promote into the top level
	fi, err := tm.GetByName("created")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, []int{0, 0}, fi.Index)

	// the outer field shadows the embedded one of the same name
	fi, err = tm.GetByName("name")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, []int{1}, fi.Index)

	v := record{}
	v.audit.Created = "then"
	got := fi.Read(reflect.ValueOf(&v))
	require.True(t, got.IsValid())
}

func TestSelfReferentialType(t *testing.T) {
	type node struct {
		ID   int64 `db:"id"`
		Next *node `db:"next"`
	}
	m := testMapper()
	tm := m.TypeMap(reflect.TypeOf(node{}))
	fi, err := tm.GetByName("next")
	require.NoError(t, err)
	require.NotNil(t, fi)
	// path expansion stops at the self-reference
	assert.Nil(t, tm.GetByPath("next.next"))

	// segment-wise navigation still descends arbitrarily deep
	root := &node{ID: 1, Next: &node{ID: 2}}
	got, err := MetaOf(root, m).GetValue("next.id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestMapperCacheConverges(t *testing.T) {
	m := testMapper()
	typ := reflect.TypeOf(person{})
	maps := make([]*StructMap, 8)
	var wg sync.WaitGroup
	for i := range maps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			maps[i] = m.TypeMap(typ)
		}(i)
	}
	wg.Wait()
	for _, sm := range maps[1:] {
		assert.Same(t, maps[0], sm)
	}
}

func TestGetValueNested(t *testing.T) {
	p := &person{
		Name:      "John",
		Home:      &address{City: "Springfield"},
		Addresses: []*address{{ID: 1}, {ID: 2}},
		Tags:      map[string]string{"k": "v"},
	}
	o := MetaOf(p, testMapper())

	got, err := o.GetValue("home.city")
	require.NoError(t, err)
	assert.Equal(t, "Springfield", got)

	got, err = o.GetValue("addresses[1].id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = o.GetValue("tags[k]")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestGetValueNilIntermediate(t *testing.T) {
	o := MetaOf(&person{}, testMapper())
	got, err := o.GetValue("home.city")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetValueUnindexable(t *testing.T) {
	o := MetaOf(&person{Name: "x"}, testMapper())
	_, err := o.GetValue("name[0]")
	var ui *UnindexableNodeError
	require.ErrorAs(t, err, &ui)
}

func TestSetValueMaterializes(t *testing.T) {
	p := &person{}
	o := MetaOf(p, testMapper())
	require.NoError(t, o.SetValue("home.city", "Shelbyville"))
	require.NotNil(t, p.Home)
	assert.Equal(t, "Shelbyville", p.Home.City)
}

func TestSetValueIndexed(t *testing.T) {
	p := &person{}
	o := MetaOf(p, testMapper())
	require.NoError(t, o.SetValue("addresses[0].city", "Ogdenville"))
	require.Len(t, p.Addresses, 1)
	assert.Equal(t, "Ogdenville", p.Addresses[0].City)

	require.NoError(t, o.SetValue("tags[color]", "red"))
	assert.Equal(t, "red", p.Tags["color"])
}

// write through P then read through P yields the written value
func TestNavigationRoundTrip(t *testing.T) {
	p := &person{}
	o := MetaOf(p, testMapper())
	paths := map[string]any{
		"name":              "Lisa",
		"home.id":           int64(9),
		"addresses[2].city": "North Haverbrook",
	}
	for path, v := range paths {
		require.NoError(t, o.SetValue(path, v))
		got, err := o.GetValue(path)
		require.NoError(t, err)
		assert.Equal(t, v, got, path)
	}
}

func TestSetValueMapRoot(t *testing.T) {
	root := map[string]any{}
	o := MetaOf(root, testMapper())
	require.NoError(t, o.SetValue("outer.inner", 7))
	outer, ok := root["outer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, outer["inner"])
}

func TestGetterType(t *testing.T) {
	o := MetaOf(&person{}, testMapper())
	typ, err := o.GetterType("addresses[0].city")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(""), typ)

	typ, err = o.GetterType("nope")
	require.NoError(t, err)
	assert.Nil(t, typ)
}
