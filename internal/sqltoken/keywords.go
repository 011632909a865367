package sqltoken

import "strings"

var keywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		ALL ALTER ANALYZE AND ANY AS ASC ATTACH BEGIN BETWEEN BOTH BY CASE CAST
		CHECK COLLATE COLUMN COMMIT CONSTRAINT COPY CREATE CROSS CURRENT_DATE
		CURRENT_TIME CURRENT_TIMESTAMP DATABASE DEFAULT DELETE DESC DESCRIBE
		DETACH DISTINCT DO DROP ELSE END EXCEPT EXISTS EXPLAIN FALSE FETCH
		FILTER FOR FOREIGN FROM FULL FUNCTION GROUP HAVING IF ILIKE IN INDEX
		INNER INSERT INSTALL INTERSECT INTERVAL INTO IS JOIN KEY LATERAL LEADING
		LEFT LIKE LIMIT LOAD MACRO NATURAL NOT NOTHING NULL NULLS OFFSET ON OR
		ORDER OUTER OVER PARTITION PIVOT PRAGMA PRIMARY QUALIFY RECURSIVE
		REFERENCES RENAME REPLACE RETURNING RIGHT ROLLBACK ROW ROWS SCHEMA SELECT
		SEQUENCE SET SHOW SIMILAR SOME SUMMARIZE TABLE TEMP TEMPORARY THEN TO
		TRAILING TRANSACTION TRUE UNION UNIQUE UNPIVOT UPDATE USE USING VACUUM
		VALUES VIEW WHEN WHERE WINDOW WITH`) {
		keywords[kw] = struct{}{}
	}
}

// IsKeyword reports whether word is a reserved or commonly highlighted SQL
// keyword, ignoring case.
func IsKeyword(word string) bool {
	_, ok := keywords[strings.ToUpper(word)]
	return ok
}
