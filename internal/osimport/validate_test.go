package osimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestValidateComplete(t *testing.T) {
	rec, err := Parse(sampleOS)
	require.NoError(t, err)

	v := Validate(rec)
	assert.True(t, v.OK())
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)
}

func TestValidateMissingBrandIsWarningOnly(t *testing.T) {
	rec, err := Parse(`Cliente: Maria Souza Contato: (21)99999-0000
Modelo: iPhone 11
Data: 01/02/2024
Problema Informado: Bateria estufada`)
	require.NoError(t, err)

	v := Validate(rec)
	assert.True(t, v.OK())
	assert.Empty(t, v.Errors)
	assert.Equal(t, []string{"marca"}, fields(v.Warnings))
}

func TestValidateBlocksMissingPhonesAndProblem(t *testing.T) {
	rec, err := Parse("Cliente: Maria Souza\nMarca: Apple Modelo: iPhone 11")
	require.NoError(t, err)

	v := Validate(rec)
	assert.False(t, v.OK())
	assert.GreaterOrEqual(t, len(v.Errors), 2)
	assert.ElementsMatch(t, []string{"contato", "problema"}, fields(v.Errors))
	assert.Equal(t, []string{"data_entrada"}, fields(v.Warnings))
}

func TestValidateAltPhoneIsEnough(t *testing.T) {
	v := Validate(&ExtractedOrder{CustomerName: "Ana", AltPhone: "(11)4002-8922", Problem: "Não carrega"})
	assert.True(t, v.OK())
	assert.ElementsMatch(t, []string{"marca", "modelo", "data_entrada"}, fields(v.Warnings))
}

func TestValidateNilRecord(t *testing.T) {
	v := Validate(nil)
	assert.Len(t, v.Errors, 3)
	assert.Len(t, v.Warnings, 3)
}
