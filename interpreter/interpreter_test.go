package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurogo/apkforensics/apkinfo"
	"github.com/kurogo/apkforensics/regstate"
	"github.com/kurogo/apkforensics/valuenode"
)

func resolve(n valuenode.Node) string { return valuenode.Resolve(n, false) }

// S4: const-string then resolve.
func TestConstString(t *testing.T) {
	it := New(16, nil)
	require.NoError(t, it.Eval([]string{"const-string", "v8", "http://x"}))
	assert.Equal(t, "http://x", resolve(it.Table().Latest(8).Value()))
}

// S5: invoke-virtual then move-result-object.
func TestInvokeThenMoveResultObject(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(6, regstate.NewObservation(valuenode.NewPrimitive("some_string", "Ljava/lang/String;"), "Ljava/lang/String;", nil))

	require.NoError(t, it.Eval([]string{"invoke-virtual", "v6", "Lcom/C;->f()Ljava/lang/String;"}))
	require.NoError(t, it.Eval([]string{"move-result-object", "v1"}))

	assert.Equal(t, "Lcom/C;->f()Ljava/lang/String;(some_string)", resolve(it.Table().Latest(1).Value()))
	assert.Equal(t, "", it.RetType())
	assert.Nil(t, it.RetValue())
}

// S6: aget-object derives element type from the array's own type.
func TestAgetObjectElementType(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(2, regstate.NewObservation(valuenode.NewPrimitive("some_list_like[1,2,3,4]", ""), "[Ljava/lang/Integer;", nil))
	it.Table().Insert(3, regstate.NewObservation(valuenode.NewPrimitive("2", "I"), "I", nil))

	require.NoError(t, it.Eval([]string{"aget-object", "v1", "v2", "v3"}))

	obs := it.Table().Latest(1)
	assert.Equal(t, "some_list_like[1,2,3,4][2]", resolve(obs.Value()))
	assert.Equal(t, "Ljava/lang/Integer;", obs.Type())
}

func TestInvokeStaticNoRegisters(t *testing.T) {
	it := New(16, nil)
	require.NoError(t, it.Eval([]string{"invoke-static", "some-func()Lclass;"}))
	require.NotNil(t, it.RetValue())
	assert.Equal(t, "some-func()Lclass;()", resolve(it.RetValue()))
}

func TestInvokeFillsMissingTypesForInstanceCalls(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(10, regstate.NewObservation(valuenode.NewPrimitive("worker", ""), "", nil))
	it.Table().Insert(11, regstate.NewObservation(valuenode.NewPrimitive("7", ""), "", nil))

	require.NoError(t, it.Eval([]string{"invoke-virtual", "v10", "v11", "Lcom/example/Worker;->run(I)Ljava/lang/String;"}))

	assert.Equal(t, "Lcom/example/Worker;", it.Table().Latest(10).Type())
	assert.Equal(t, "I", it.Table().Latest(11).Type())
}

func TestInvokeFillsMissingTypesForStaticCalls(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(12, regstate.NewObservation(valuenode.NewPrimitive("1", ""), "", nil))
	it.Table().Insert(13, regstate.NewObservation(valuenode.NewPrimitive("two", ""), "", nil))

	require.NoError(t, it.Eval([]string{"invoke-static", "v12", "v13", "Lcom/example/Helpers;->mix(ILjava/lang/String;)V"}))

	assert.Equal(t, "I", it.Table().Latest(12).Type())
	assert.Equal(t, "Ljava/lang/String;", it.Table().Latest(13).Type())
}

func TestInvokeVirtualWithClassInheritance(t *testing.T) {
	calls := map[string][]apkinfo.Method{
		"Landroid/support/v4/util/SimpleArrayMap;": {
			{Class: "Landroid/support/v4/util/SimpleArrayMap;", Name: "isEmpty", Descriptor: "()Z"},
		},
	}
	backend := &fakeBackend{
		superclasses: map[string][]string{
			"Landroid/support/v4/util/ArrayMap;": {"Landroid/support/v4/util/SimpleArrayMap;"},
		},
		findMethod: calls,
	}

	it := New(16, backend)
	it.Table().Insert(8, regstate.NewObservation(valuenode.NewPrimitive("ArrayMap object", "Landroid/support/v4/util/ArrayMap;"), "Landroid/support/v4/util/ArrayMap;", nil))

	require.NoError(t, it.Eval([]string{"invoke-virtual", "v8", "Landroid/support/v4/util/ArrayMap;->isEmpty()Z"}))

	require.NotNil(t, it.RetValue())
	assert.Equal(t, "Landroid/support/v4/util/SimpleArrayMap;->isEmpty()Z(ArrayMap object)", resolve(it.RetValue()))
}

func TestMoveObjectAliasesSameObservation(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(4, regstate.NewObservation(valuenode.NewPrimitive("Lcom/google/progress/SMSHelper;", "Lcom/google/progress/SMSHelper;"), "Lcom/google/progress/SMSHelper;", nil))

	require.NoError(t, it.Eval([]string{"move-object", "v1", "v4"}))

	assert.Same(t, it.Table().Latest(4), it.Table().Latest(1))
}

func TestMoveWideKind(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(4, regstate.NewObservation(valuenode.NewPrimitive("Lcom/google/progress/SMSHelper;", "Lcom/google/progress/SMSHelper;"), "Lcom/google/progress/SMSHelper;", nil))
	it.Table().Insert(5, regstate.NewObservation(valuenode.NewMethodCall("java.lang.String.toString", []valuenode.Node{valuenode.NewPrimitive("some_number", "")}), "I", nil))

	require.NoError(t, it.Eval([]string{"move-wide", "v1", "v4"}))

	assert.Equal(t, "Lcom/google/progress/SMSHelper;", resolve(it.Table().Latest(1).Value()))
	assert.Equal(t, "java.lang.String.toString(some_number)", resolve(it.Table().Latest(2).Value()))
}

func TestNewInstanceOverwritesPriorValue(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(4, regstate.NewObservation(valuenode.NewPrimitive("old", "old"), "old", nil))

	require.NoError(t, it.Eval([]string{"new-instance", "v4", "Lcom/google/progress/SMSHelper;"}))

	assert.Equal(t, "Lcom/google/progress/SMSHelper;", resolve(it.Table().Latest(4).Value()))
}

func TestNewArrayDoesNotInterpolateType(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(5, regstate.NewObservation(valuenode.NewMethodCall("java.lang.String.toString", []valuenode.Node{valuenode.NewPrimitive("some_number", "")}), "I", nil))

	require.NoError(t, it.Eval([]string{"new-array", "v1", "v5", "[java/lang/String;"}))

	obs := it.Table().Latest(1)
	assert.Equal(t, "new-array()[(java.lang.String.toString(some_number))", resolve(obs.Value()))
	assert.Equal(t, "[java/lang/String;", obs.Type())
}

func TestFilledNewArrayPrimitiveType(t *testing.T) {
	it := New(16, nil)
	require.NoError(t, it.Eval([]string{"filled-new-array", "v1", "[I"}))
	assert.Equal(t, "new-array()[I()", resolve(it.RetValue()))
	assert.Equal(t, "[I", it.RetType())
}

func TestAputMutatesArrayRegister(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(4, regstate.NewObservation(valuenode.NewPrimitive("Lcom/google/progress/SMSHelper;", "Lcom/google/progress/SMSHelper;"), "Lcom/google/progress/SMSHelper;", nil))
	it.Table().Insert(5, regstate.NewObservation(valuenode.NewMethodCall("java.lang.String.toString", []valuenode.Node{valuenode.NewPrimitive("some_number", "")}), "I", nil))
	it.Table().Insert(6, regstate.NewObservation(valuenode.NewMethodCall("java.lang.Collection.toArray", []valuenode.Node{valuenode.NewPrimitive("an_array", "")}), "[I", nil))

	require.NoError(t, it.Eval([]string{"aput", "v4", "v6", "v5"}))

	obs := it.Table().Latest(6)
	assert.Equal(t, "java.lang.Collection.toArray(an_array)[java.lang.String.toString(some_number)]:Lcom/google/progress/SMSHelper;", resolve(obs.Value()))
	assert.Equal(t, "[I", obs.Type())
}

func TestBinopSimple(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(5, regstate.NewObservation(valuenode.NewMethodCall("java.lang.String.toString", []valuenode.Node{valuenode.NewPrimitive("some_number", "")}), "I", nil))
	it.Table().Insert(6, regstate.NewObservation(valuenode.NewMethodCall("java.lang.Collection.toArray", []valuenode.Node{valuenode.NewPrimitive("an_array", "")}), "I", nil))

	require.NoError(t, it.Eval([]string{"add-int", "v1", "v5", "v6"}))

	obs := it.Table().Latest(1)
	assert.Equal(t, "binop(java.lang.String.toString(some_number), java.lang.Collection.toArray(an_array))", resolve(obs.Value()))
	assert.Equal(t, "I", obs.Type())
}

func TestBinop2addr(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(4, regstate.NewObservation(valuenode.NewPrimitive("Lcom/google/progress/SMSHelper;", "Lcom/google/progress/SMSHelper;"), "Lcom/google/progress/SMSHelper;", nil))
	it.Table().Insert(6, regstate.NewObservation(valuenode.NewMethodCall("java.lang.Collection.toArray", []valuenode.Node{valuenode.NewPrimitive("an_array", "")}), "I", nil))

	require.NoError(t, it.Eval([]string{"add-int/2addr", "v4", "v6"}))

	assert.Equal(t, "binop(Lcom/google/progress/SMSHelper;, java.lang.Collection.toArray(an_array))", resolve(it.Table().Latest(4).Value()))
}

func TestBinopLit(t *testing.T) {
	it := New(16, nil)
	it.Table().Insert(5, regstate.NewObservation(valuenode.NewMethodCall("java.lang.String.toString", []valuenode.Node{valuenode.NewPrimitive("some_number", "")}), "I", nil))

	require.NoError(t, it.Eval([]string{"add-int/lit8", "v1", "v5", "literal_number"}))

	assert.Equal(t, "binop(java.lang.String.toString(some_number), literal_number)", resolve(it.Table().Latest(1).Value()))
}

func TestMoveException(t *testing.T) {
	it := New(16, nil)
	require.NoError(t, it.Eval([]string{"move-exception", "v1"}))
	assert.Equal(t, "Exception", resolve(it.Table().Latest(1).Value()))
}

func TestFillArrayData(t *testing.T) {
	it := New(16, nil)
	require.NoError(t, it.Eval([]string{"fill-array-data", "v6", "array-data-address"}))
	assert.Equal(t, "Embedded-array-data()[]", resolve(it.Table().Latest(6).Value()))
}

func TestEvalUnknownMnemonicIsError(t *testing.T) {
	it := New(4, nil)
	err := it.Eval([]string{"not-a-real-instruction", "v1"})
	assert.ErrorIs(t, err, ErrSemantic)
}

func TestEvalEmptyInstructionIsError(t *testing.T) {
	it := New(4, nil)
	err := it.Eval(nil)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestInvokeWithMalformedSignatureIsError(t *testing.T) {
	it := New(4, nil)
	err := it.Eval([]string{"invoke-static", "", ""})
	assert.ErrorIs(t, err, ErrFormat)
}

type fakeBackend struct {
	superclasses map[string][]string
	findMethod   map[string][]apkinfo.Method
}

func (f *fakeBackend) AllMethods() []apkinfo.Method                       { return nil }
func (f *fakeBackend) AndroidAPIs() []apkinfo.Method                      { return nil }
func (f *fakeBackend) CustomMethods() []apkinfo.Method                    { return nil }
func (f *fakeBackend) Upperfunc(m apkinfo.Method) []apkinfo.Method        { return nil }
func (f *fakeBackend) Lowerfunc(m apkinfo.Method) []apkinfo.CalleeEdge    { return nil }
func (f *fakeBackend) Permissions() []string                             { return nil }
func (f *fakeBackend) SubclassRelationships(class string) []string       { return nil }

func (f *fakeBackend) SuperclassRelationships(class string) []string {
	return f.superclasses[class]
}

func (f *fakeBackend) FindMethod(class, name, descriptor string) []apkinfo.Method {
	return f.findMethod[class]
}

func (f *fakeBackend) MethodBytecode(m apkinfo.Method) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {}
}
