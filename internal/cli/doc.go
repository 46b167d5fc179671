// Package cli содержит команды cobra для бинарника recipes.
//
// Локальные команды (validate, run, modules) собирают оркестратор в
// этом же процессе и не требуют сервисов. Команды submit, runs и context
// ходят в recipes-api через Client:
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Status: "ABORTED"})
//
// Output печатает таблицы через text/tabwriter или JSON при --json.
// Данные идут в stdout, итоговые сообщения в stderr, поэтому вывод
// можно передавать в jq: recipes run arith.yaml --json | jq .report
//
// Фабрики команд принимают outputFn и clientFn, чтобы Output и Client
// создавались после разбора persistent флагов.
//
// run и submit --sync возвращают ErrRunAborted для прерванного или
// отменённого run; main превращает его в код выхода 1.
package cli
