// Package dao builds the SQL statements of registered entities from
// runtime requests and runs them.
//
// A [DAO] turns a [Query] into a SELECT and a [Record] into an INSERT,
// UPDATE or DELETE. Building never performs I/O:
//
//	daos, err := dao.NewRegistry(reg, dao.WithAuthorizer(policy))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	orders := daos.MustDAO("Order")
//	stmt, err := orders.Select(ctx, &dao.Query{
//	    Values: map[string]any{"status": "open", "ord_date": dao.IsNotNull()},
//	    Children: map[string]*dao.Query{
//	        "lines": {Values: map[string]any{"product": "chair"}},
//	    },
//	})
//	// SELECT * FROM orders , customers ON orders.cust_id = customers.id
//	// WHERE status=? AND ord_date IS NOT NULL
//	// AND ord_id IN (SELECT lines.line_ord FROM lines WHERE UPPER(product) LIKE UPPER(?))
//	// ORDER BY ord_id ASC
//
// Updates and deletes are guarded by the timestamp read with the record.
// An [Executor] reports a guarded write that affected no row as
// [StatusConflict] together with an *iscore.ConflictError:
//
//	res, err := dao.NewExecutor(drv).Update(ctx, orders, &dao.Record{
//	    ID:        42,
//	    Timestamp: readTS,
//	    Values:    map[string]any{"status": "closed"},
//	    AuditUser: "jdoe",
//	})
//	if iscore.IsConflict(err) {
//	    // reload and retry the edit
//	}
//
// [NextID] allocates ids from a sequence table in a short transaction of
// its own.
package dao
