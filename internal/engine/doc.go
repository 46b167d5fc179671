// Package engine содержит загрузку и валидацию рецептов.
//
// Включает:
//   - parser.go   — Load/Validate/ParseStep/ParseRecipe (YAML или JSON)
//   - template.go — рендеринг Go templates в args и when ({{ .Context.x }})
//   - errors.go   — FormatError, ValidationError и sentinel-ошибки
//
// Валидация всегда завершается до запуска первого шага: рецепт,
// не прошедший проверку, не меняет Context.
package engine
