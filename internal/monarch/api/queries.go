package api

// GraphQL operations, trimmed to the fields the sensors consume.

const queryGetAccounts = `query GetAccounts {
  accounts {
    id
    displayName
    displayBalance
    updatedAt
    isAsset
    isHidden
    includeInNetWorth
    type {
      name
      display
    }
    credential {
      institution {
        name
      }
    }
  }
}`

const queryGetTransactionCategories = `query GetCategories {
  categories {
    id
    name
    group {
      id
      type
    }
  }
}`

const queryGetCashflow = `query Web_GetCashFlowPage($filters: TransactionFilterInput) {
  byCategory: aggregates(filters: $filters, groupBy: ["category"]) {
    groupBy {
      category {
        id
        name
        group {
          id
          type
        }
      }
    }
    summary {
      sum
    }
  }
  summary: aggregates(filters: $filters, fillEmptyValues: true) {
    summary {
      sumIncome
      sumExpense
      savings
      savingsRate
    }
  }
}`
