package accounting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Expense{Amount: decimal.NewFromInt(50), Category: CategoryPayroll}))
	assert.ErrorIs(t, Validate(Expense{Amount: decimal.NewFromInt(50)}), ErrInvalidExpense)
	assert.ErrorIs(t, Validate(Expense{Amount: decimal.NewFromInt(-1), Category: CategoryPayroll}), ErrInvalidExpense)
}
