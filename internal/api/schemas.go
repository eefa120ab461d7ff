package api

const depositInitiateSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0}
  }
}`

const depositConfirmSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "transaction_id": {"type": "integer", "minimum": 1}
  }
}`

const withdrawInitiateSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount", "channel_ref"],
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "channel_ref": {"type": "string", "minLength": 3, "maxLength": 255}
  }
}`

const depositApproveSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transaction_id"],
  "properties": {
    "transaction_id": {"type": "integer", "minimum": 1}
  }
}`

const withdrawReviewSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["withdrawal_id"],
  "properties": {
    "withdrawal_id": {"type": "integer", "minimum": 1},
    "reason": {"type": "string", "maxLength": 500}
  }
}`
